package model

import "testing"

func TestCapabilitySet_Has_exact(t *testing.T) {
	cs := CapabilitySet{
		CapProtocolRead:   true,
		CapDocumentReview: true,
	}
	if !cs.Has(CapProtocolRead) {
		t.Errorf("Has(%s) = false, want true", CapProtocolRead)
	}
	if cs.Has(CapStageSkip) {
		t.Errorf("Has(%s) = true, want false", CapStageSkip)
	}
}

func TestCapabilitySet_Has_wildcard_star(t *testing.T) {
	cs := CapabilitySet{"*": true}
	if !cs.Has(CapTFDGestao) {
		t.Error("wildcard * should match tfd gestão")
	}
}

func TestCapabilitySet_Has_wildcard_namespace(t *testing.T) {
	cs := CapabilitySet{"tfd:*": true}
	if !cs.Has(CapTFDRegulacao) {
		t.Error("tfd:* should match regulação médica")
	}
	if !cs.Has(CapTFDManage) {
		t.Error("tfd:* should match tfd:manage")
	}
	if cs.Has(CapStockDispense) {
		t.Error("tfd:* should not match stock:dispense")
	}
}

func TestCapabilitySet_nil(t *testing.T) {
	var cs CapabilitySet
	if cs.Has(CapProtocolRead) {
		t.Error("nil set should not match anything")
	}
	if !cs.HasAll() {
		t.Error("HasAll with no args should be true")
	}
	if cs.HasAny() {
		t.Error("HasAny with no args should be false")
	}
}

func TestCapabilitySet_HasAll_HasAny(t *testing.T) {
	cs := CapabilitySet{"stock:*": true, CapProtocolRead: true}
	if !cs.HasAll(CapStockManage, CapStockDispense, CapProtocolRead) {
		t.Error("HasAll should match namespace and exact entries")
	}
	if cs.HasAll(CapStockManage, CapWorkflowManage) {
		t.Error("HasAll should be false when one missing")
	}
	if !cs.HasAny(CapWorkflowManage, CapStockManage) {
		t.Error("HasAny should be true when one present")
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		cap     string
		want    bool
	}{
		{"*", "protocols:read", true},
		{"protocols:*", "protocols:status:update", true},
		{"protocols:*", "pendings:manage", false},
		{"workflow:stage:*", "workflow:stage:skip", true},
		{"workflow:stage:*", "workflows:manage", false},
		{"protocols:read", "protocols:read", false},
		{"protocols", "protocols:read", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.cap, func(t *testing.T) {
			if got := matchWildcard(tt.pattern, tt.cap); got != tt.want {
				t.Errorf("matchWildcard(%q, %q) = %v, want %v", tt.pattern, tt.cap, got, tt.want)
			}
		})
	}
}
