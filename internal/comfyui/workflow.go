package comfyui

import (
	"fmt"
	"strings"
)

// GenerationParams describes a text-to-image request.
type GenerationParams struct {
	Prompt         string
	NegativePrompt string
	Checkpoint     string
	Width          int
	Height         int
	Steps          int
	CFG            float64
	Seed           int64
	Sampler        string
	Scheduler      string
	BatchSize      int
	FilenamePrefix string
}

func (p *GenerationParams) applyDefaults() {
	if p.Width <= 0 {
		p.Width = 1024
	}
	if p.Height <= 0 {
		p.Height = 1024
	}
	if p.Steps <= 0 {
		p.Steps = 20
	}
	if p.CFG <= 0 {
		p.CFG = 7.0
	}
	if p.Sampler == "" {
		p.Sampler = "euler"
	}
	if p.Scheduler == "" {
		p.Scheduler = "normal"
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 1
	}
	if p.FilenamePrefix == "" {
		p.FilenamePrefix = "aictl"
	}
}

// Validate checks the parameters that have no sensible default.
func (p GenerationParams) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if strings.TrimSpace(p.Checkpoint) == "" {
		return fmt.Errorf("checkpoint is required")
	}
	return nil
}

// Node ids in the generated graph. SaveImage is where outputs appear in
// the history response.
const saveImageNodeID = "9"

// buildTextToImageGraph produces the node graph for a basic text-to-image
// pipeline: checkpoint loader, CLIP encodes for both prompts, KSampler,
// VAE decode, save.
func buildTextToImageGraph(p GenerationParams) map[string]any {
	p.applyDefaults()

	return map[string]any{
		"3": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"seed":         p.Seed,
				"steps":        p.Steps,
				"cfg":          p.CFG,
				"sampler_name": p.Sampler,
				"scheduler":    p.Scheduler,
				"denoise":      1.0,
				"model":        []any{"4", 0},
				"positive":     []any{"6", 0},
				"negative":     []any{"7", 0},
				"latent_image": []any{"5", 0},
			},
		},
		"4": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs": map[string]any{
				"ckpt_name": p.Checkpoint,
			},
		},
		"5": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs": map[string]any{
				"width":      p.Width,
				"height":     p.Height,
				"batch_size": p.BatchSize,
			},
		},
		"6": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs": map[string]any{
				"text": p.Prompt,
				"clip": []any{"4", 1},
			},
		},
		"7": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs": map[string]any{
				"text": p.NegativePrompt,
				"clip": []any{"4", 1},
			},
		},
		"8": map[string]any{
			"class_type": "VAEDecode",
			"inputs": map[string]any{
				"samples": []any{"3", 0},
				"vae":     []any{"4", 2},
			},
		},
		saveImageNodeID: map[string]any{
			"class_type": "SaveImage",
			"inputs": map[string]any{
				"filename_prefix": p.FilenamePrefix,
				"images":          []any{"8", 0},
			},
		},
	}
}
