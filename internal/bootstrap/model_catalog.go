package bootstrap

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"scribe-desktop/internal/domain"
)

var modelCatalog = []domain.ModelOption{
	{
		Size:        domain.ModelTiny,
		Name:        "Tiny",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model.",
	},
	{
		Size:        domain.ModelBase,
		Name:        "Base",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, multilingual.",
	},
	{
		Size:        domain.ModelSmall,
		Name:        "Small",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		Size:        domain.ModelMedium,
		Name:        "Medium",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		Size:        domain.ModelLarge,
		Name:        "Large v3",
		SizeLabel:   "~2.9 GB",
		Description: "Most accurate, slowest model.",
	},
}

// GetModelOptions returns the model sizes with local availability for the
// configured backend. Missing models are fetched by the backend on first use.
func (a *App) GetModelOptions() []domain.ModelOption {
	return catalogFor(a.GetSettings(), a.homeDir, os.Getenv("XDG_CACHE_HOME"))
}

func catalogFor(settings domain.Settings, homeDir, cacheHome string) []domain.ModelOption {
	dir := settings.ModelDir
	fileName := domain.ModelSize.GGMLFileName
	if settings.Backend != domain.BackendWhisperCpp {
		dir = pythonModelCacheDir(homeDir, cacheHome)
		fileName = pythonCheckpointName
	}

	return lo.Map(modelCatalog, func(model domain.ModelOption, _ int) domain.ModelOption {
		model.FileName = fileName(model.Size)
		if path, ok := localModelFile(dir, model.FileName); ok {
			model.Available = true
			model.LocalPath = path
		}
		return model
	})
}

// pythonModelCacheDir is where openai-whisper keeps downloaded checkpoints.
func pythonModelCacheDir(homeDir, cacheHome string) string {
	if strings.TrimSpace(cacheHome) != "" {
		return filepath.Join(cacheHome, "whisper")
	}
	return filepath.Join(homeDir, ".cache", "whisper")
}

func pythonCheckpointName(size domain.ModelSize) string {
	if size == domain.ModelLarge {
		return "large-v3.pt"
	}
	return string(size) + ".pt"
}

func localModelFile(dir, fileName string) (string, bool) {
	if strings.TrimSpace(dir) == "" {
		return "", false
	}
	candidate := filepath.Join(dir, fileName)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	return candidate, true
}
