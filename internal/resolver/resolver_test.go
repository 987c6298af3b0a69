package resolver

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ligustah/offliner/internal/location"
	"github.com/ligustah/offliner/internal/testutils"
	"github.com/ligustah/offliner/pkg/artifact"
	"github.com/ligustah/offliner/pkg/pom"
)

func mustParse(t *testing.T, doc string) *pom.Project {
	t.Helper()
	p, err := pom.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("pom.Parse: %v", err)
	}
	return p
}

const singleDependency = `<project>
  <groupId>org.test</groupId>
  <artifactId>test-project</artifactId>
  <version>1.0</version>
  <properties>
    <version.org.dep>1.2.3</version.org.dep>
  </properties>
  <dependencies>
    <dependency>
      <groupId>org.dep</groupId>
      <artifactId>dep-artifact</artifactId>
      <version>${version.org.dep}</version>
    </dependency>
  </dependencies>
</project>`

func TestResolveDescriptorExpandsVersionProperty(t *testing.T) {
	r := &Resolver{}
	eff, errs := r.ResolveDescriptor(mustParse(t, singleDependency))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := []artifact.Coordinate{{GroupID: "org.dep", ArtifactID: "dep-artifact", Version: "1.2.3", Type: "jar"}}
	if diff := cmp.Diff(want, eff.Coordinates()); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
	if got := eff.Properties["version.org.dep"]; got != "1.2.3" {
		t.Errorf("expected resolved property 1.2.3, got %q", got)
	}
}

func TestResolveGeneratedDescriptor(t *testing.T) {
	self := artifact.Coordinate{GroupID: "org.test", ArtifactID: "app", Version: "2.0", Type: "pom"}
	deps := []artifact.Coordinate{
		{GroupID: "org.dep", ArtifactID: "lib", Version: "1.0", Type: "jar"},
		{GroupID: "org.dep", ArtifactID: "lib", Version: "1.0", Type: "jar", Classifier: "sources"},
		{GroupID: "org.dep", ArtifactID: "webapp", Version: "3.1", Type: "war"},
	}

	r := &Resolver{}
	eff, errs := r.ResolveDescriptor(mustParse(t, string(testutils.Descriptor(self, deps...))))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if diff := cmp.Diff(deps, eff.Coordinates()); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDescriptorIncludeSelf(t *testing.T) {
	r := &Resolver{IncludeSelf: true}
	eff, errs := r.ResolveDescriptor(mustParse(t, singleDependency))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	got := eff.Coordinates()
	if len(got) != 2 {
		t.Fatalf("expected 2 coordinates, got %d", len(got))
	}
	if got[0].String() != "org.test:test-project:1.0:jar" {
		t.Errorf("expected own coordinate first, got %s", got[0])
	}
}

func TestResolveDescriptorDeclarationOrder(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId>
  <artifactId>a</artifactId>
  <version>1</version>
  <dependencies>
    <dependency><groupId>z</groupId><artifactId>z</artifactId><version>1</version></dependency>
    <dependency><groupId>b</groupId><artifactId>b</artifactId><version>1</version></dependency>
    <dependency><groupId>m</groupId><artifactId>m</artifactId><version>1</version><type>pom</type></dependency>
  </dependencies>
</project>`

	r := &Resolver{}
	eff, errs := r.ResolveDescriptor(mustParse(t, doc))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	var got []string
	for _, c := range eff.Coordinates() {
		got = append(got, c.String())
	}
	want := []string{"z:z:1:jar", "b:b:1:jar", "m:m:1:pom"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDescriptorPriority(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId>
  <artifactId>a</artifactId>
  <version>2.0</version>
  <properties>
    <dep.version>declared</dep.version>
  </properties>
  <dependencies>
    <dependency><groupId>x</groupId><artifactId>declared</artifactId><version>${dep.version}</version></dependency>
    <dependency><groupId>x</groupId><artifactId>implicit</artifactId><version>${project.version}</version></dependency>
    <dependency><groupId>x</groupId><artifactId>override</artifactId><version>${only.override}</version></dependency>
  </dependencies>
</project>`

	r := &Resolver{Overrides: map[string]string{
		"dep.version":     "from-override",
		"project.version": "from-override",
		"only.override":   "3.0",
	}}
	eff, errs := r.ResolveDescriptor(mustParse(t, doc))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	var got []string
	for _, c := range eff.Dependencies {
		got = append(got, c.Version)
	}
	want := []string{"declared", "2.0", "3.0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDescriptorManagedVersion(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId>
  <artifactId>a</artifactId>
  <version>1</version>
  <properties><lib.version>4.5</lib.version></properties>
  <dependencyManagement>
    <dependencies>
      <dependency><groupId>org.lib</groupId><artifactId>lib</artifactId><version>${lib.version}</version></dependency>
    </dependencies>
  </dependencyManagement>
  <dependencies>
    <dependency><groupId>org.lib</groupId><artifactId>lib</artifactId></dependency>
    <dependency><groupId>org.other</groupId><artifactId>unmanaged</artifactId></dependency>
  </dependencies>
</project>`

	r := &Resolver{}
	eff, errs := r.ResolveDescriptor(mustParse(t, doc))
	if eff == nil {
		t.Fatalf("descriptor failed: %v", errs)
	}
	if len(eff.Dependencies) != 1 || eff.Dependencies[0].Version != "4.5" {
		t.Errorf("expected managed version 4.5, got %v", eff.Dependencies)
	}

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	var mv *MissingVersionError
	if !errors.As(errs[0], &mv) {
		t.Fatalf("expected MissingVersionError, got %v", errs[0])
	}
	if mv.Key != "org.other:unmanaged" {
		t.Errorf("expected key org.other:unmanaged, got %s", mv.Key)
	}
}

func TestResolveDescriptorUnresolved(t *testing.T) {
	tests := []struct {
		name  string
		props string
		token string
		cycle bool
	}{
		{
			name:  "unknown property",
			props: ``,
			token: "${missing}",
		},
		{
			name:  "direct cycle",
			props: `<missing>${missing}</missing>`,
			token: "${missing}",
			cycle: true,
		},
		{
			name:  "indirect cycle",
			props: `<missing>${other}</missing><other>${missing}</other>`,
			token: "${missing}",
			cycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<project><groupId>g</groupId><artifactId>a</artifactId><version>1</version>
<properties>` + tt.props + `</properties>
<dependencies><dependency><groupId>x</groupId><artifactId>y</artifactId><version>${missing}</version></dependency></dependencies>
</project>`

			r := &Resolver{}
			eff, errs := r.ResolveDescriptor(mustParse(t, doc))
			if eff != nil {
				t.Fatalf("expected descriptor to fail, got %v", eff.Coordinates())
			}
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}

			var ue *pom.UnresolvedPropertyError
			if !errors.As(errs[0], &ue) {
				t.Fatalf("expected UnresolvedPropertyError, got %v", errs[0])
			}
			if !tt.cycle && ue.Token != tt.token {
				t.Errorf("expected token %s, got %s", tt.token, ue.Token)
			}
			if tt.cycle && len(ue.Cycle) == 0 {
				t.Errorf("expected cycle to be reported, got %v", ue)
			}
		})
	}
}

func TestResolveDescriptorSkipsSystemScope(t *testing.T) {
	doc := `<project><groupId>g</groupId><artifactId>a</artifactId><version>1</version>
<dependencies>
  <dependency><groupId>sys</groupId><artifactId>tools</artifactId><version>1</version><scope>system</scope></dependency>
  <dependency><groupId>t</groupId><artifactId>junit</artifactId><version>4</version><scope>test</scope></dependency>
</dependencies>
</project>`

	eff, errs := (&Resolver{}).ResolveDescriptor(mustParse(t, doc))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(eff.Dependencies) != 1 || eff.Dependencies[0].ArtifactID != "junit" {
		t.Errorf("expected only junit, got %v", eff.Dependencies)
	}

	eff, _ = (&Resolver{SkipScopes: []string{}}).ResolveDescriptor(mustParse(t, doc))
	if len(eff.Dependencies) != 2 {
		t.Errorf("expected both dependencies with no skipped scopes, got %v", eff.Dependencies)
	}
}

func TestResolveDescriptorParent(t *testing.T) {
	doc := `<project>
  <parent><groupId>org.parent</groupId><artifactId>parent</artifactId><version>7</version></parent>
  <artifactId>child</artifactId>
</project>`

	r := &Resolver{IncludeSelf: true, IncludeParent: true}
	eff, errs := r.ResolveDescriptor(mustParse(t, doc))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	var got []string
	for _, c := range eff.Coordinates() {
		got = append(got, c.String())
	}
	want := []string{"org.parent:child:7:jar", "org.parent:parent:7:pom"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveEntries(t *testing.T) {
	entries := []location.RawEntry{
		{Location: "list.txt", Line: 1, Coordinate: "org.a:a:${a.version}"},
		{Location: "list.txt", Line: 2, Path: "org/raw/raw/1/raw-1.zip"},
		{Location: "list.txt", Line: 3, Coordinate: "org.b:b:${unknown}"},
		{Location: "project.pom", Descriptor: mustParse(t, singleDependency)},
	}

	r := &Resolver{Overrides: map[string]string{"a.version": "9"}}
	resolved, errs := r.Resolve(entries)

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	var ee *EntryError
	if !errors.As(errs[0], &ee) || ee.Key() != "list.txt:3" {
		t.Errorf("expected entry error keyed list.txt:3, got %v", errs[0])
	}

	want := []Resolved{
		{Coordinate: artifact.Coordinate{GroupID: "org.a", ArtifactID: "a", Version: "9", Type: "jar"}, Location: "list.txt"},
		{Path: "org/raw/raw/1/raw-1.zip", Location: "list.txt"},
		{Coordinate: artifact.Coordinate{GroupID: "org.dep", ArtifactID: "dep-artifact", Version: "1.2.3", Type: "jar"}, Location: "project.pom"},
	}
	if diff := cmp.Diff(want, resolved); diff != "" {
		t.Errorf("resolved mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRejectsPathEscape(t *testing.T) {
	entries := []location.RawEntry{
		{Location: "list.txt", Line: 1, Coordinate: "org.a:${bad}:1"},
	}
	r := &Resolver{Overrides: map[string]string{"bad": "../../etc"}}
	resolved, errs := r.Resolve(entries)
	if len(resolved) != 0 {
		t.Errorf("expected nothing resolved, got %v", resolved)
	}
	if len(errs) != 1 || !errors.Is(errs[0], artifact.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", errs)
	}
}
