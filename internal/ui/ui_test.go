package ui

import "testing"

func TestPlainOutputWhenColorDisabled(t *testing.T) {
	DisableColor()
	for name, fn := range map[string]func(string) string{
		"RenderAccent": RenderAccent,
		"RenderPass":   RenderPass,
		"RenderWarn":   RenderWarn,
		"RenderFail":   RenderFail,
		"RenderDim":    RenderDim,
	} {
		if got := fn("synced 3 documents"); got != "synced 3 documents" {
			t.Errorf("%s = %q, want the text untouched", name, got)
		}
	}
}
