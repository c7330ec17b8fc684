package bin

import (
	"testing"
)

func TestItaniumDemangle(t *testing.T) {
	golden := []struct {
		name string
		want string
	}{
		{name: "_Z3fooi", want: "foo(int)"},
		{name: "_Z3barv", want: "bar()"},
		{name: "_Z7processPci", want: "process(char*, int)"},
		{name: "main", want: "main"},
		{name: "_Zqq", want: "_Zqq"},
		{name: "_Z99x", want: "_Z99x"},
	}
	d := ItaniumDemangler{}
	for _, g := range golden {
		if got := d.Demangle(g.name); got != g.want {
			t.Errorf("%q: expected %q, got %q", g.name, g.want, got)
		}
	}
}

func TestAddr(t *testing.T) {
	var addr Addr
	if err := addr.Set("0x401000"); err != nil {
		t.Fatalf("unable to parse address; %+v", err)
	}
	if want := Addr(0x401000); addr != want {
		t.Errorf("expected %v, got %v", want, addr)
	}
	if want := "0x00401000"; addr.String() != want {
		t.Errorf("expected %q, got %q", want, addr.String())
	}
	if err := addr.Set("4096"); err != nil {
		t.Fatalf("unable to parse address; %+v", err)
	}
	if want := Addr(4096); addr != want {
		t.Errorf("expected %v, got %v", want, addr)
	}
}

func TestModuleName(t *testing.T) {
	file := &File{
		Symbols: []Symbol{
			{Name: "bar", Addr: 0x402000},
			{Name: "_Z3fooi", Addr: 0x401000},
		},
	}
	file.sortSymbols()
	m := NewModule(file, nil, nil)
	if got, want := m.Name(0x401000), "_Z3fooi"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got, want := m.Name(0x402000), "bar"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := m.Name(0x403000); got != "" {
		t.Errorf("expected no symbol, got %q", got)
	}
}
