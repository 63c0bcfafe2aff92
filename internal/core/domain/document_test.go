package domain

import "testing"

func TestParseDocumentID(t *testing.T) {
	id := NewDocumentID()
	parsed, err := ParseDocumentID(id.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed != id {
		t.Errorf("parsed %s, expected %s", parsed, id)
	}

	bad := []string{"", "not-a-uuid", "12345", "doc:550e8400"}
	for _, s := range bad {
		if _, err := ParseDocumentID(s); err == nil {
			t.Errorf("ParseDocumentID(%q) should fail", s)
		}
	}
}

func TestDocumentStatusTerminal(t *testing.T) {
	if DocumentStatusIntake.Terminal() || DocumentStatusProcessing.Terminal() {
		t.Error("active statuses must not be terminal")
	}
	if !DocumentStatusCompleted.Terminal() || !DocumentStatusFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestSourceRefString(t *testing.T) {
	ref := SourceRef{Bucket: "intake", Key: "cases/2024/filing.pdf"}
	if got := ref.String(); got != "s3://intake/cases/2024/filing.pdf" {
		t.Errorf("unexpected source ref string: %s", got)
	}
}
