package spec

import (
	"encoding/json"
	"testing"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		in      string
		want    TypeDescriptor
		wantErr bool
	}{
		{
			in:   "numeric/int",
			want: TypeDescriptor{Raw: "numeric/int", Kind: KindNumeric, Elem: ElemInt},
		},
		{
			in:   "numeric",
			want: TypeDescriptor{Raw: "numeric", Kind: KindNumeric},
		},
		{
			in:   "ndarray/uint8///3",
			want: TypeDescriptor{Raw: "ndarray/uint8///3", Kind: KindNDArray, Elem: "uint8", Dims: []Dim{{}, {}, {Size: 3, Fixed: true}}},
		},
		{
			in:   "ndarray/uint8//",
			want: TypeDescriptor{Raw: "ndarray/uint8//", Kind: KindNDArray, Elem: "uint8", Dims: []Dim{{}, {}}},
		},
		{
			in:   "ndarray//4/",
			want: TypeDescriptor{Raw: "ndarray//4/", Kind: KindNDArray, Dims: []Dim{{Size: 4, Fixed: true}, {}}},
		},
		{
			in:   "ndarray/float",
			want: TypeDescriptor{Raw: "ndarray/float", Kind: KindNDArray, Elem: ElemFloat},
		},
		{
			in:   " numeric/float64 ",
			want: TypeDescriptor{Raw: "numeric/float64", Kind: KindNumeric, Elem: "float64"},
		},
		{in: "", wantErr: true},
		{in: "string/utf8", wantErr: true},
		{in: "ndarray/complex64", wantErr: true},
		{in: "ndarray/uint8/x", wantErr: true},
		{in: "ndarray/uint8/0", wantErr: true},
		{in: "ndarray/uint8/-2", wantErr: true},
		{in: "numeric/int/3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDescriptor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestElemTypeAccepts(t *testing.T) {
	tests := []struct {
		elem ElemType
		dt   ndarray.DType
		want bool
	}{
		{ElemAny, ndarray.Float32, true},
		{ElemInt, ndarray.Uint8, true},
		{ElemInt, ndarray.Int64, true},
		{ElemInt, ndarray.Float64, false},
		{ElemUint, ndarray.Int8, false},
		{ElemUint, ndarray.Uint16, true},
		{ElemFloat, ndarray.Float32, true},
		{ElemFloat, ndarray.Int32, false},
		{"uint8", ndarray.Uint8, true},
		{"uint8", ndarray.Uint16, false},
	}

	for _, tt := range tests {
		if got := tt.elem.Accepts(tt.dt); got != tt.want {
			t.Errorf("ElemType(%q).Accepts(%q) = %v, want %v", tt.elem, tt.dt, got, tt.want)
		}
	}
}

func TestDescriptorEncoding(t *testing.T) {
	p := ParamSpec{Name: "image", Type: MustParseDescriptor("ndarray/uint8///3")}

	out, err := yaml.Marshal(p)
	if err != nil {
		t.Fatalf("yaml marshal: %v", err)
	}
	var back ParamSpec
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if diff := cmp.Diff(p, back); diff != "" {
		t.Errorf("yaml mismatch (-want +got):\n%s", diff)
	}

	js, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	if want := `{"name":"image","type":"ndarray/uint8///3"}`; string(js) != want {
		t.Errorf("json = %s, want %s", js, want)
	}
}

func TestParseRequirement(t *testing.T) {
	r, err := ParseRequirement("mmacommon>=1.3.5")
	if err != nil {
		t.Fatalf("ParseRequirement: %v", err)
	}
	if r.Name != "mmacommon" {
		t.Errorf("Name = %q", r.Name)
	}

	for v, want := range map[string]bool{"1.3.5": true, "1.4.0": true, "1.3.4": false} {
		ok, err := r.Satisfied(v)
		if err != nil {
			t.Fatalf("Satisfied(%s): %v", v, err)
		}
		if ok != want {
			t.Errorf("Satisfied(%s) = %v, want %v", v, ok, want)
		}
	}

	plain, err := ParseRequirement("numpy")
	if err != nil || plain.Constraint != nil || plain.Name != "numpy" {
		t.Errorf("unversioned requirement = %+v, %v", plain, err)
	}

	if _, err := ParseRequirement(">=1.0"); err == nil {
		t.Error("expected error for missing name")
	}
}
