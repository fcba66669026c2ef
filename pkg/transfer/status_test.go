package transfer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

func TestNext_Table(t *testing.T) {
	allowed := map[Status][]Event{
		StatusPending:   {EventQuorumReached, EventCancel, EventFail},
		StatusSigned:    {EventApprove, EventCancel, EventFail},
		StatusApproved:  {EventExecute, EventFail},
		StatusExecuting: {EventComplete, EventFail},
	}
	events := []Event{EventQuorumReached, EventApprove, EventExecute, EventComplete, EventCancel, EventFail}

	for _, from := range AllStatuses {
		for _, ev := range events {
			to, err := Next(from, ev)
			want := false
			for _, a := range allowed[from] {
				if a == ev {
					want = true
				}
			}
			if want {
				if err != nil {
					t.Fatalf("%s on %s: unexpected error %v", ev, from, err)
				}
				if to <= from && !to.Terminal() {
					t.Fatalf("%s on %s moved backward to %s", ev, from, to)
				}
				continue
			}
			if !errors.Is(err, bridge.ErrInvalidTransition) {
				t.Fatalf("%s on %s: expected ErrInvalidTransition, got %v (to %s)", ev, from, err, to)
			}
		}
	}
}

func TestNext_CancelOnlyBeforeReservation(t *testing.T) {
	for _, from := range []Status{StatusApproved, StatusExecuting} {
		if _, err := Next(from, EventCancel); err == nil {
			t.Fatalf("cancel allowed from %s", from)
		}
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"status": StatusExecuting})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"status":"EXECUTING"}` {
		t.Fatalf("unexpected json %s", b)
	}

	var decoded map[string]Status
	if err := json.Unmarshal([]byte(`{"status":"cancelled"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", decoded["status"])
	}

	if _, err := ParseStatus("BOGUS"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestTransfer_ViewProgress(t *testing.T) {
	tr := &Transfer{
		RequiredSignatures: 3,
		TotalSigners:       5,
		Signatures: map[string]Signature{
			"b": {SignerID: "b"},
			"a": {SignerID: "a"},
		},
	}
	v := tr.View()
	if v.SignaturesCollected != 2 || v.SignaturesRequired != 3 {
		t.Fatalf("unexpected counts %d/%d", v.SignaturesCollected, v.SignaturesRequired)
	}
	if v.SignatureProgress != 66 {
		t.Fatalf("expected progress 66, got %d", v.SignatureProgress)
	}
	if v.Signers[0] != "a" || v.Signers[1] != "b" {
		t.Fatalf("signers not sorted: %v", v.Signers)
	}

	tr.Signatures["c"] = Signature{SignerID: "c"}
	tr.Signatures["d"] = Signature{SignerID: "d"}
	if got := tr.View().SignatureProgress; got != 100 {
		t.Fatalf("expected progress capped at 100, got %d", got)
	}
}

func TestTransfer_CloneIsDeep(t *testing.T) {
	tr := &Transfer{
		ID:                "t1",
		DesignatedSigners: []string{"a"},
		Signatures:        map[string]Signature{"a": {SignerID: "a", Bytes: []byte{1}}},
	}
	c := tr.Clone()
	c.DesignatedSigners[0] = "z"
	c.Signatures["a"].Bytes[0] = 9
	c.Signatures["b"] = Signature{SignerID: "b"}

	if tr.DesignatedSigners[0] != "a" || tr.Signatures["a"].Bytes[0] != 1 || len(tr.Signatures) != 1 {
		t.Fatal("clone shares state with original")
	}
}
