package bin

import (
	"debug/pe"

	"github.com/pkg/errors"
)

// ParsePE parses the given 32-bit PE binary executable into a File.
func ParsePE(path string) (*File, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	optHdr, ok := f.OptionalHeader.(*pe.OptionalHeader32)
	if !ok {
		return nil, errors.New("support for 64-bit executables not yet implemented")
	}
	file := &File{
		Path:      path,
		ImageBase: Addr(optHdr.ImageBase),
		Entry:     Addr(optHdr.ImageBase + optHdr.AddressOfEntryPoint),
	}
	for _, sect := range f.Sections {
		data, err := sect.Data()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		file.Sections = append(file.Sections, &Section{
			Name: sect.Name,
			Addr: file.ImageBase + Addr(sect.VirtualAddress),
			Data: data,
			Perm: perm(sect),
		})
	}
	for _, sym := range f.Symbols {
		if sym.SectionNumber <= 0 || int(sym.SectionNumber) > len(f.Sections) {
			continue
		}
		sect := f.Sections[sym.SectionNumber-1]
		file.Symbols = append(file.Symbols, Symbol{
			Name: sym.Name,
			Addr: file.ImageBase + Addr(sect.VirtualAddress+sym.Value),
		})
	}
	file.sortSymbols()
	return file, nil
}

// ### [ Helper functions ] ####################################################

// perm returns the access permissions of the given PE section.
func perm(sect *pe.Section) Perm {
	const (
		codeMask  = 0x00000020
		execMask  = 0x20000000
		readMask  = 0x40000000
		writeMask = 0x80000000
	)
	var p Perm
	if sect.Characteristics&readMask != 0 {
		p |= PermR
	}
	if sect.Characteristics&writeMask != 0 {
		p |= PermW
	}
	if sect.Characteristics&(execMask|codeMask) != 0 {
		p |= PermX
	}
	return p
}
