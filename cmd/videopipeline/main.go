// Command videopipeline wires transcription, digesting, LLM evaluation, and
// artifact storage into a single graph, run once per discovered input file.
//
// The per-item loop (persist path keyed by item, constant node SetValue, then
// RunUpto) is ported directly from
// original_source/src/video_summarizer/student_flow.py's main().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hirak99/video-summarizer/flow"
	"github.com/hirak99/video-summarizer/log"
	"github.com/hirak99/video-summarizer/processors/artifact"
	"github.com/hirak99/video-summarizer/processors/llmeval"
	"github.com/hirak99/video-summarizer/processors/transcribe"
)

// digestFunc flattens a transcribe.Transcript into the plain-text digest
// llmeval.NewFactory expects for its "transcript" argument.
func digestFunc(args map[string]any) (any, error) {
	transcript := args["transcript"].(transcribe.Transcript)
	if len(transcript.Segments) == 0 {
		return transcript.Text, nil
	}
	lines := make([]string, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		lines[i] = seg.Text
	}
	return strings.Join(lines, "\n"), nil
}

// installTracerProvider installs an in-process, exporter-less
// sdktrace.TracerProvider as the global provider so WithTracing spans are
// actually recorded (and can be inspected with a span processor) rather than
// silently discarded by otel's no-op default. Returns a shutdown func to
// flush pending spans at process exit.
func installTracerProvider() func() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warnf("Tracer provider shutdown: %v", err)
		}
	}
}

func main() {
	shutdownTracing := installTracerProvider()
	defer shutdownTracing()

	inputGlob := flag.String("input-glob", "./testdata/**/*.mp4", "doublestar glob of media files to process")
	persistDir := flag.String("persist-dir", "./out/logs", "directory to store per-item graph state")
	rubric := flag.String("rubric", "Rate how clearly the speaker explains the topic.", "system prompt fed to the LLM judge")
	bucketURL := flag.String("bucket-url", "", "Tencent COS bucket URL for artifact storage; uploads are skipped if empty")
	flag.Parse()

	files, err := doublestar.FilepathGlob(*inputGlob)
	if err != nil {
		log.Fatalf("Invalid glob %q: %v", *inputGlob, err)
	}
	if len(files) == 0 {
		log.Warnf("No files matched %q", *inputGlob)
		return
	}

	if err := os.MkdirAll(*persistDir, 0o755); err != nil {
		log.Fatalf("Creating persist dir: %v", err)
	}

	graph := flow.NewProcessGraph()

	pathConst, err := graph.AddConstantNode(0, "InputPath", ptrType(flow.StringType()))
	if err != nil {
		log.Fatalf("Adding constant node: %v", err)
	}

	transcribeNode, err := graph.AddNode(1, transcribe.NewFactory(), map[string]any{
		"path": pathConst,
	}, flow.WithVersion(1))
	if err != nil {
		log.Fatalf("Adding transcribe node: %v", err)
	}

	digestNode, err := graph.AddNode(2, flow.NewFunctionFactory("TranscriptDigest", digestFunc), map[string]any{
		"transcript": transcribeNode,
	})
	if err != nil {
		log.Fatalf("Adding transcript digest node: %v", err)
	}

	evalNode, err := graph.AddNode(3, llmeval.NewFactory(llmeval.Options{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  "gpt-4o-mini",
	}), map[string]any{
		"rubric":     *rubric,
		"transcript": digestNode,
	}, flow.WithVersion(1), flow.WithTracing())
	if err != nil {
		log.Fatalf("Adding llm eval node: %v", err)
	}

	var artifactNode *flow.GraphNode
	if *bucketURL != "" {
		artifactNode, err = graph.AddNode(4, artifact.NewFactory(artifact.Options{
			BucketURL: *bucketURL,
		}), map[string]any{
			"object_name": pathConst,
			"data":        []byte(nil),
		})
		if err != nil {
			log.Fatalf("Adding artifact node: %v", err)
		}
	}

	targets := []*flow.GraphNode{evalNode}
	if artifactNode != nil {
		targets = append(targets, artifactNode)
	}

	for _, path := range files {
		log.Infof("Processing %s", path)

		persistPath := filepath.Join(*persistDir, fmt.Sprintf("%s.process_graph.json", filepath.Base(path)))
		if err := graph.Persist(persistPath); err != nil {
			log.Fatalf("Persisting graph state for %s: %v", path, err)
		}
		if err := pathConst.SetValue(path); err != nil {
			log.Fatalf("Setting input path: %v", err)
		}

		if _, err := graph.RunUpto(targets...); err != nil {
			log.Errorf("Run failed for %s: %v", path, err)
			continue
		}
	}
}

func ptrType(t flow.TypeDescriptor) *flow.TypeDescriptor { return &t }
