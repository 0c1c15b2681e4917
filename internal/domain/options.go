package domain

import (
	"strings"

	"github.com/samber/lo"
)

// ModelSize names one of the fixed speech model sizes.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// Language is a language hint passed to the model; LanguageAuto lets the
// model detect it.
type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageEnglish Language = "en"
	LanguageGerman  Language = "de"
	LanguageSpanish Language = "es"
	LanguageFrench  Language = "fr"
	LanguageItalian Language = "it"
)

// Device selects where inference runs.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// Option is one selectable value with a display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var modelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

var languageOrder = []Language{
	LanguageAuto,
	LanguageEnglish,
	LanguageGerman,
	LanguageSpanish,
	LanguageFrench,
	LanguageItalian,
}

var languageNames = map[Language]string{
	LanguageAuto:    "Auto",
	LanguageEnglish: "English",
	LanguageGerman:  "German",
	LanguageSpanish: "Spanish",
	LanguageFrench:  "French",
	LanguageItalian: "Italian",
}

var deviceLabels = map[Device]string{
	DeviceAuto: "Auto",
	DeviceCUDA: "GPU (CUDA)",
	DeviceCPU:  "CPU",
}

// ModelSizes returns the supported model sizes from smallest to largest.
func ModelSizes() []ModelSize {
	return append([]ModelSize(nil), modelSizes...)
}

// Valid reports whether s is one of the supported sizes.
func (s ModelSize) Valid() bool {
	return lo.Contains(modelSizes, s)
}

// GGMLFileName is the whisper.cpp model file used for this size.
func (s ModelSize) GGMLFileName() string {
	if s == ModelLarge {
		return "ggml-large-v3.bin"
	}
	return "ggml-" + string(s) + ".bin"
}

// ParseModelSize normalizes user input into a supported size.
func ParseModelSize(raw string) (ModelSize, bool) {
	size := ModelSize(strings.ToLower(strings.TrimSpace(raw)))
	return size, size.Valid()
}

// ParseLanguage accepts a language code or its English name. Empty input
// maps to LanguageAuto.
func ParseLanguage(raw string) (Language, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return LanguageAuto, true
	}
	return lo.FindKeyBy(languageNames, func(code Language, name string) bool {
		return string(code) == v || strings.ToLower(name) == v
	})
}

// Code returns the model-facing language code, empty for auto detection.
func (l Language) Code() string {
	if l == LanguageAuto {
		return ""
	}
	return string(l)
}

// ParseDevice accepts auto, cpu, cuda and the gpu alias.
func ParseDevice(raw string) (Device, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return DeviceAuto, true
	case "cuda", "gpu":
		return DeviceCUDA, true
	case "cpu":
		return DeviceCPU, true
	default:
		return "", false
	}
}

// Accelerated reports whether the device needs a GPU runtime.
func (d Device) Accelerated() bool {
	return d == DeviceCUDA
}

// LanguageOptions returns the language selector entries in display order.
func LanguageOptions() []Option {
	return lo.Map(languageOrder, func(l Language, _ int) Option {
		return Option{Value: string(l), Label: languageNames[l]}
	})
}

// DeviceOptions returns the device selector entries.
func DeviceOptions() []Option {
	return lo.Map([]Device{DeviceAuto, DeviceCUDA, DeviceCPU}, func(d Device, _ int) Option {
		return Option{Value: string(d), Label: deviceLabels[d]}
	})
}
