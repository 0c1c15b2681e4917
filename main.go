package main

import (
	"embed"
	"io/fs"

	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/bootstrap"
)

//go:embed frontend
var appAssets embed.FS

func main() {
	assets, err := fs.Sub(appAssets, "frontend")
	if err != nil {
		logrus.Fatalf("load frontend assets: %v", err)
	}

	app, err := bootstrap.New(bootstrap.Options{Assets: assets})
	if err != nil {
		logrus.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		logrus.Fatalf("run app: %v", err)
	}
}
