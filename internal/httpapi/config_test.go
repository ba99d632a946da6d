package httpapi

import "testing"

func TestSetMaxBodyBytes(t *testing.T) {
	old := maxBodyBytes
	t.Cleanup(func() { maxBodyBytes = old })

	SetMaxBodyBytes(2048)
	if maxBodyBytes != 2048 {
		t.Fatalf("maxBodyBytes = %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("zero did not reset default: %d", maxBodyBytes)
	}
	SetMaxBodyBytes(-5)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("negative did not reset default: %d", maxBodyBytes)
	}
}

func TestSetPromptTimeoutSeconds(t *testing.T) {
	old := promptTimeout
	t.Cleanup(func() { promptTimeout = old })

	SetPromptTimeoutSeconds(30)
	if promptTimeout != 30 {
		t.Fatalf("promptTimeout = %d", promptTimeout)
	}
	SetPromptTimeoutSeconds(-1)
	if promptTimeout != 0 {
		t.Fatalf("negative not clamped: %d", promptTimeout)
	}
}

func TestSetCORSOptions_CopiesSlices(t *testing.T) {
	t.Cleanup(func() { SetCORSOptions(false, nil, nil, nil) })

	origins := []string{"http://localhost:3000"}
	SetCORSOptions(true, origins, []string{"GET"}, []string{"Content-Type"})
	origins[0] = "mutated"
	if !corsEnabled || corsAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("options not copied: %v", corsAllowedOrigins)
	}
}
