package imageindex

import (
	"context"
	"strings"

	"aictl/internal/deepstack"
)

// DeepStackAnalyzer runs object detection, face recognition and scene
// classification against a DeepStack server.
type DeepStackAnalyzer struct {
	client *deepstack.Client
}

// NewDeepStackAnalyzer wraps a DeepStack client.
func NewDeepStackAnalyzer(client *deepstack.Client) *DeepStackAnalyzer {
	return &DeepStackAnalyzer{client: client}
}

// Analyze gathers what DeepStack can tell about the image. Individual
// detection failures degrade to empty results rather than failing the
// whole analysis.
func (a *DeepStackAnalyzer) Analyze(ctx context.Context, imagePath string) (Analysis, error) {
	var analysis Analysis
	var firstErr error

	if preds, err := a.client.DetectObjects(ctx, imagePath); err != nil {
		firstErr = err
	} else {
		for _, p := range preds {
			analysis.Objects = append(analysis.Objects, p.Label)
		}
	}

	if preds, err := a.client.RecognizeFaces(ctx, imagePath); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		for _, p := range preds {
			identity := strings.TrimSpace(p.UserID)
			if identity == "" || strings.EqualFold(identity, "unknown") {
				continue
			}
			analysis.People = append(analysis.People, identity)
		}
	}

	if scene, err := a.client.ClassifyScene(ctx, imagePath); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else if scene != nil {
		analysis.Scene = scene.Label
	}

	// Only fail when nothing at all came back.
	if firstErr != nil && len(analysis.Objects) == 0 && len(analysis.People) == 0 && analysis.Scene == "" {
		return Analysis{}, firstErr
	}
	return analysis, nil
}
