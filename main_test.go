package main

import (
	"reflect"
	"strings"
	"testing"

	"scribe-desktop/internal/bootstrap"
)

// lifecycleMethods are called by Go code rather than the frontend.
var lifecycleMethods = map[string]bool{
	"Run":       true,
	"Startup":   true,
	"Shutdown":  true,
	"Subscribe": true,
}

// TestFrontendCallsEveryBinding keeps bound App methods reachable from the UI.
func TestFrontendCallsEveryBinding(t *testing.T) {
	page, err := appAssets.ReadFile("frontend/index.html")
	if err != nil {
		t.Fatalf("read frontend: %v", err)
	}
	html := string(page)

	appType := reflect.TypeOf(&bootstrap.App{})
	for i := 0; i < appType.NumMethod(); i++ {
		name := appType.Method(i).Name
		if lifecycleMethods[name] {
			continue
		}
		if !strings.Contains(html, "api()."+name+"(") {
			t.Errorf("frontend never calls %s", name)
		}
	}
	if !strings.Contains(html, `EventsOn("job:event"`) {
		t.Error("frontend does not subscribe to job events")
	}
}
