package calls

import "testing"

func TestRecord_Validate(t *testing.T) {
	if err := (Record{ID: "c1", LeadID: 1}).Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := (Record{LeadID: 1}).Validate(); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if err := (Record{ID: "c1"}).Validate(); err == nil {
		t.Fatalf("expected error for missing lead")
	}
}

func TestRecord_IsDispatchFailure(t *testing.T) {
	if !(Record{ID: DispatchIDPrefix + "abc"}).IsDispatchFailure() {
		t.Fatalf("expected dispatch failure")
	}
	if (Record{ID: "64f1c2"}).IsDispatchFailure() {
		t.Fatalf("provider id is not a dispatch failure")
	}
}
