//go:build !whisper

package speech

import "fmt"

func newCppLoader(Config) (Loader, error) {
	return nil, fmt.Errorf("%w: whisper.cpp support not built (build with -tags whisper)", ErrBackendUnavailable)
}
