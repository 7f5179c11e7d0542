package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refinelab/refinery/pkg/models"
)

const sampleManifest = `
projects:
  - name: commons-lang
    target_jar: build/commons-lang.jar
    source_dir: src/main/java
    classes:
      - org.apache.commons.lang3.StringUtils
      - org.apache.commons.lang3.math.NumberUtils
  - name: joda-time
    target_jar: /opt/jars/joda-time.jar
    classes:
      - org.joda.time.DateTime
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, sampleManifest)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(m.Projects))
	}
	if m.Root != filepath.Dir(path) {
		t.Errorf("Root = %q, want manifest directory %q", m.Root, filepath.Dir(path))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of missing file should fail")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "no projects",
			manifest: "projects: []",
			wantErr:  "no projects",
		},
		{
			name: "missing name",
			manifest: `
projects:
  - target_jar: a.jar
    classes: [com.example.Foo]
`,
			wantErr: "name is required",
		},
		{
			name: "missing jar",
			manifest: `
projects:
  - name: p1
    classes: [com.example.Foo]
`,
			wantErr: "target_jar is required",
		},
		{
			name: "no classes",
			manifest: `
projects:
  - name: p1
    target_jar: a.jar
    classes: []
`,
			wantErr: "no classes",
		},
		{
			name: "duplicate project",
			manifest: `
projects:
  - name: p1
    target_jar: a.jar
    classes: [com.example.Foo]
  - name: p1
    target_jar: b.jar
    classes: [com.example.Bar]
`,
			wantErr: "duplicate project",
		},
		{
			name: "duplicate class",
			manifest: `
projects:
  - name: p1
    target_jar: a.jar
    classes: [com.example.Foo, com.example.Foo]
`,
			wantErr: "duplicate class",
		},
		{
			name:     "malformed yaml",
			manifest: "projects: [\n",
			wantErr:  "parse manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.manifest))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestUnits(t *testing.T) {
	m, err := Load(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	units := m.Units(0)
	if len(units) != 3 {
		t.Fatalf("units = %d, want 3", len(units))
	}

	u := units[0]
	if u.Project != "commons-lang" {
		t.Errorf("Project = %q, want commons-lang", u.Project)
	}
	if u.ClassName != "org.apache.commons.lang3.StringUtils" {
		t.Errorf("ClassName = %q", u.ClassName)
	}
	if u.CurrentPhase != models.PhaseBaseline {
		t.Errorf("CurrentPhase = %q, want baseline", u.CurrentPhase)
	}
	if u.State != models.UnitActive {
		t.Errorf("State = %q, want active", u.State)
	}
	if !filepath.IsAbs(u.TargetJar) {
		t.Errorf("TargetJar = %q, want resolved against manifest root", u.TargetJar)
	}

	// Absolute paths pass through untouched.
	if units[2].TargetJar != "/opt/jars/joda-time.jar" {
		t.Errorf("absolute TargetJar = %q, want unchanged", units[2].TargetJar)
	}
}

func TestUnitsLimit(t *testing.T) {
	m, err := Load(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	units := m.Units(2)
	if len(units) != 2 {
		t.Errorf("limited units = %d, want 2", len(units))
	}
}

func TestUnitIDStable(t *testing.T) {
	a := UnitID("commons-lang", "org.apache.commons.lang3.StringUtils")
	b := UnitID("commons-lang", "org.apache.commons.lang3.StringUtils")
	if a != b {
		t.Errorf("UnitID not deterministic: %q != %q", a, b)
	}

	c := UnitID("joda-time", "org.apache.commons.lang3.StringUtils")
	if a == c {
		t.Error("UnitID should differ across projects")
	}

	// Resume correctness depends on IDs surviving process restarts.
	m1, _ := Load(writeManifest(t, sampleManifest))
	m2, _ := Load(writeManifest(t, sampleManifest))
	if m1.Units(0)[0].ID != m2.Units(0)[0].ID {
		t.Error("unit IDs differ across manifest loads")
	}
}
