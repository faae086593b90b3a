//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a BERT-style sentence encoder through ONNX Runtime. It
// requires CGO and the onnxruntime shared library.
//
// Models that emit one vector per token (last_hidden_state) are mean-pooled
// over the attention mask; models that already emit a pooled vector are used
// as is. Wrap it with WithCache to avoid re-running inference for repeated text.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenLevel bool
	tokenizer  Tokenizer

	inputs map[string]*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath. The model must take int64
// input_ids and attention_mask (token_type_ids is optional) and produce
// float32 vectors of the given dimension.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(outInfo) == 0 {
		return nil, fmt.Errorf("model %s has no outputs", modelPath)
	}

	e := &ONNXEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenLevel: len(outInfo[0].Dimensions) == 3,
		tokenizer:  &SimpleTokenizer{},
		inputs:     make(map[string]*ort.Tensor[int64], len(inInfo)),
	}

	shape := ort.NewShape(1, int64(maxTokens))
	inputNames := make([]string, 0, len(inInfo))
	inputTensors := make([]ort.ArbitraryTensor, 0, len(inInfo))
	for _, in := range inInfo {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
		default:
			_ = e.Close()
			return nil, fmt.Errorf("unsupported model input %q", in.Name)
		}
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create %s tensor: %w", in.Name, err)
		}
		e.inputs[in.Name] = t
		inputNames = append(inputNames, in.Name)
		inputTensors = append(inputTensors, t)
	}
	if e.inputs["input_ids"] == nil || e.inputs["attention_mask"] == nil {
		_ = e.Close()
		return nil, fmt.Errorf("model must take input_ids and attention_mask")
	}

	outShape := ort.NewShape(1, int64(dimensions))
	if e.tokenLevel {
		outShape = ort.NewShape(1, int64(maxTokens), int64(dimensions))
	}
	if e.output, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		modelPath,
		inputNames,
		[]string{outInfo[0].Name},
		inputTensors,
		[]ort.ArbitraryTensor{e.output},
		nil,
	)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return e, nil
}

// Embed runs inference for text and returns the L2-normalized output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, typeIDs := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputs["input_ids"].GetData(), ids)
	copy(e.inputs["attention_mask"].GetData(), mask)
	if t := e.inputs["token_type_ids"]; t != nil {
		copy(t.GetData(), typeIDs)
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := e.output.GetData()
	vec := make([]float32, e.dimensions)
	if e.tokenLevel {
		meanPool(vec, out, mask)
	} else {
		copy(vec, out)
	}
	NormalizeL2Slice(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for name, t := range e.inputs {
		_ = t.Destroy()
		delete(e.inputs, name)
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
