package tree

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genPaths generates a list of absolute node paths built from short identifiers.
func genPaths() gopter.Gen {
	component := gen.OneConstOf("a", "b", "c", "start", "end", "0", "1", "2")
	path := gen.SliceOfN(3, component).Map(func(parts []string) string {
		return "/" + strings.Join(parts, "/")
	})
	return gen.SliceOfN(6, path)
}

func buildTree(paths []string) *Tree {
	tr := New()
	for i, p := range paths {
		tr.Mkdir(p)
		tr.Touch(p+"/leaf"+string(rune('a'+i%3)), i)
	}
	return tr
}

func TestProp_PathRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("cd(pwd()) leaves pwd unchanged", prop.ForAll(
		func(paths []string, rel string) bool {
			tr := buildTree(paths)
			for _, p := range paths {
				tr.Cd(p)
				tr.Cd(rel)
				before := tr.Pwd()
				if !tr.Cd(before) || tr.Pwd() != before {
					return false
				}
			}
			return true
		},
		genPaths(),
		gen.OneConstOf("..", "../..", ".", "a", "../b", "nope"),
	))
	properties.TestingRun(t)
}

func TestProp_CopyNonAliasing(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("mutations after copy are not shared", prop.ForAll(
		func(paths []string) bool {
			a := buildTree(paths)
			b := New()
			if err := a.Copy("/", b, "/dest"); err != nil {
				return false
			}
			before, _ := b.Dump("/dest")
			for _, p := range paths {
				leaves, _ := a.Lsf(p)
				for _, l := range leaves {
					a.Touch(p+"/"+l, "mutated-in-a")
				}
			}
			after, _ := b.Dump("/dest")
			if !reflect.DeepEqual(before, after) {
				return false
			}
			srcBefore, _ := a.Dump("/")
			for _, p := range paths {
				leaves, _ := b.Lsf("/dest" + p)
				for _, l := range leaves {
					b.Touch("/dest"+p+"/"+l, "mutated-in-b")
				}
			}
			srcAfter, _ := a.Dump("/")
			return reflect.DeepEqual(srcBefore, srcAfter)
		},
		genPaths(),
	))
	properties.TestingRun(t)
}

func TestProp_SaveLoadRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)
	properties.Property("load(save(T)) equals T at every path", prop.ForAll(
		func(paths []string) bool {
			tr := buildTree(paths)
			dir, err := os.MkdirTemp("", "tree-prop")
			if err != nil {
				return false
			}
			defer os.RemoveAll(dir)
			if err := tr.Save("/", dir); err != nil {
				return false
			}
			loaded, err := Load(dir)
			if err != nil {
				return false
			}
			for _, p := range tr.Paths() {
				d1, _ := tr.Ls(p)
				d2, _ := loaded.Ls(p)
				f1, _ := tr.Lsf(p)
				f2, _ := loaded.Lsf(p)
				if !reflect.DeepEqual(d1, d2) || !reflect.DeepEqual(f1, f2) {
					return false
				}
				for _, f := range f1 {
					v1, _ := tr.Cat(p + "/" + f)
					v2, _ := loaded.Cat(p + "/" + f)
					if !reflect.DeepEqual(v1, v2) {
						return false
					}
				}
			}
			return true
		},
		genPaths(),
	))
	properties.TestingRun(t)
}
