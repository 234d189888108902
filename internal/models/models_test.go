package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestOperator_Fields(t *testing.T) {
	typ := reflect.TypeOf(Operator{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "NationalID", "uniqueIndex")
	assertGormTag(t, typ, "FullName", "not null")
	assertGormTag(t, typ, "Active", "default:true")
}

func TestConsentRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(ConsentRecord{})

	assertGormTag(t, typ, "NationalID", "size:11")
	assertGormTag(t, typ, "NationalID", "index")
	assertGormTag(t, typ, "Status", "default:pending")
}

func TestConversation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Conversation{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "Phone", "index")
	assertGormTag(t, typ, "Status", "default:active")
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		model interface{ TableName() string }
		want  string
	}{
		{Operator{}, "operators"},
		{Customer{}, "customers"},
		{ConsentRecord{}, "consent_records"},
		{Conversation{}, "conversations"},
		{ConversationMessage{}, "conversation_messages"},
		{Negotiation{}, "negotiations"},
		{Alert{}, "alerts"},
	}
	for _, tt := range tests {
		if got := tt.model.TableName(); got != tt.want {
			t.Errorf("TableName() = %q, want %q", got, tt.want)
		}
	}
}

func TestConsentRecord_ComputeStatus(t *testing.T) {
	tests := []struct {
		name string
		data bool
		docs bool
		want ConsentStatus
	}{
		{"both", true, true, ConsentComplete},
		{"data only", true, false, ConsentDataOnly},
		{"docs only", false, true, ConsentDocsOnly},
		{"neither", false, false, ConsentPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ConsentRecord{DataProcessing: tt.data, DocumentSharing: tt.docs}
			if got := c.ComputeStatus(); got != tt.want {
				t.Errorf("ComputeStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsentRecord_AllowsDataCollection(t *testing.T) {
	now := time.Now()

	revoked := ConsentRecord{Status: ConsentRevoked, DataProcessing: true, DataProcessingAt: &now}
	if revoked.AllowsDataCollection() {
		t.Error("revoked record should not allow collection")
	}

	granted := ConsentRecord{Status: ConsentDataOnly, DataProcessing: true}
	if !granted.AllowsDataCollection() {
		t.Error("data-processing grant should allow collection")
	}

	docsOnly := ConsentRecord{Status: ConsentDocsOnly, DocumentSharing: true}
	if docsOnly.AllowsDataCollection() {
		t.Error("docs-only grant should not allow data collection")
	}

	pending := ConsentRecord{Status: ConsentPending}
	if !pending.AllowsDataCollection() {
		t.Error("pending record should allow collection")
	}
}
