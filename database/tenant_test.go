package database

import "testing"

func TestSchemaName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Acme Corp", "acme_corp", false},
		{"  globex  ", "globex", false},
		{"1st Choice", "", true},
		{"Müller GmbH", "", true},
		{"drop;table", "", true},
	}
	for _, tt := range tests {
		got, err := SchemaName(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("SchemaName(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWithTenantRejectsBadSchema(t *testing.T) {
	if err := WithTenant(nil, `acme"; drop`, nil); err == nil {
		t.Fatal("unsafe schema accepted")
	}
}
