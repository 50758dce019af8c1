package version

import (
	"strings"
	"testing"
)

func TestFullInfo(t *testing.T) {
	info := FullInfo()
	if !strings.HasPrefix(info, "version="+Version+" ") || !strings.Contains(info, " go=go") {
		t.Fatalf("unexpected build info %q", info)
	}
}
