package platform_test

import (
	"go/build"
	"slices"
	"strings"
	"testing"
)

const modulePath = "github.com/mkrupp/apptemplate/internal/"

// variantImports evaluates the build constraints of this package for tags and
// returns the variant packages it would link, plus the resolve files selected.
func variantImports(t *testing.T, tags []string) ([]string, []string) {
	t.Helper()

	ctx := build.Default
	ctx.BuildTags = tags

	pkg, err := ctx.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir with tags %v: %v", tags, err)
	}

	var variants []string

	for _, imp := range pkg.Imports {
		for _, module := range []string{"credstore/", "navigation/"} {
			if rest, ok := strings.CutPrefix(imp, modulePath+module); ok {
				variants = append(variants, module+rest)
			}
		}
	}

	var files []string

	for _, f := range pkg.GoFiles {
		if strings.HasPrefix(f, "resolve_") {
			files = append(files, f)
		}
	}

	slices.Sort(variants)

	return variants, files
}

func TestResolveLinksOneVariantPerModule(t *testing.T) {
	tests := []struct {
		name         string
		tags         []string
		wantVariants []string
		wantFile     string
	}{
		{
			name:         "default",
			wantVariants: []string{"credstore/browser", "navigation/browser"},
			wantFile:     "resolve_web.go",
		},
		{
			name:         "web",
			tags:         []string{"web"},
			wantVariants: []string{"credstore/browser", "navigation/browser"},
			wantFile:     "resolve_web.go",
		},
		{
			name:         "native",
			tags:         []string{"native"},
			wantVariants: []string{"credstore/native", "navigation/native"},
			wantFile:     "resolve_native.go",
		},
		{
			name:         "edge",
			tags:         []string{"edge"},
			wantVariants: []string{"credstore/edge", "navigation/edge"},
			wantFile:     "resolve_edge.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants, files := variantImports(t, tt.tags)

			if !slices.Equal(variants, tt.wantVariants) {
				t.Errorf("variants = %v, want %v", variants, tt.wantVariants)
			}

			if len(files) != 1 || files[0] != tt.wantFile {
				t.Errorf("resolve files = %v, want only %s", files, tt.wantFile)
			}
		})
	}
}

func TestResolveRejectsConflictingTargets(t *testing.T) {
	for _, tags := range [][]string{{"native", "edge"}, {"web", "native"}, {"web", "edge"}} {
		t.Run(strings.Join(tags, "+"), func(t *testing.T) {
			variants, files := variantImports(t, tags)

			if len(variants) != 0 {
				t.Errorf("variants = %v, want none", variants)
			}

			if len(files) != 1 || files[0] != "resolve_conflict.go" {
				t.Errorf("resolve files = %v, want only resolve_conflict.go", files)
			}
		})
	}
}
