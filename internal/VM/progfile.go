package VM

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/kitedb/kite/internal/SF/errors"
)

// Program image format. P4 operands are polymorphic, so each serialized
// instruction carries a small kind discriminator; function references
// are stored by name and re-resolved against the registry on load.
const (
	p4None uint8 = iota
	p4Int
	p4Int64
	p4Real
	p4Text
	p4Blob
	p4KeyInfo
	p4Func
)

type instImage struct {
	Op string `cbor:"o"`
	P1 int32  `cbor:"1,omitempty"`
	P2 int32  `cbor:"2,omitempty"`
	P3 int32  `cbor:"3,omitempty"`
	P5 uint16 `cbor:"5,omitempty"`

	P4Kind uint8         `cbor:"k,omitempty"`
	P4Int  int64         `cbor:"i,omitempty"`
	P4Real float64       `cbor:"r,omitempty"`
	P4Text string        `cbor:"t,omitempty"`
	P4Blob []byte        `cbor:"b,omitempty"`
	P4Key  *keyInfoImage `cbor:"y,omitempty"`
	P4Name string        `cbor:"f,omitempty"`
	P4NArg int           `cbor:"n,omitempty"`
}

type keyInfoImage struct {
	NField   int      `cbor:"n"`
	Colls    []string `cbor:"c,omitempty"`
	SortDesc []bool   `cbor:"d,omitempty"`
}

type progImage struct {
	Version      int         `cbor:"v"`
	NumRegs      int         `cbor:"r"`
	NumCursors   int         `cbor:"c"`
	ErrorHandler int         `cbor:"e"`
	Instructions []instImage `cbor:"i"`
}

const progImageVersion = 1

var progEncMode, _ = cbor.CanonicalEncOptions().EncMode()

// MarshalProgram serializes a program for storage or transport. The
// image is deterministic, so identical programs produce identical
// bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	img := progImage{
		Version:      progImageVersion,
		NumRegs:      p.NumRegs,
		NumCursors:   p.NumCursors,
		ErrorHandler: p.ErrorHandler,
		Instructions: make([]instImage, len(p.Instructions)),
	}
	for i, in := range p.Instructions {
		ii := instImage{Op: in.Op.String(), P1: in.P1, P2: in.P2, P3: in.P3, P5: in.P5}
		switch p4 := in.P4.(type) {
		case nil:
		case int:
			ii.P4Kind = p4Int
			ii.P4Int = int64(p4)
		case int64:
			ii.P4Kind = p4Int64
			ii.P4Int = p4
		case float64:
			ii.P4Kind = p4Real
			ii.P4Real = p4
		case string:
			ii.P4Kind = p4Text
			ii.P4Text = p4
		case []byte:
			ii.P4Kind = p4Blob
			ii.P4Blob = p4
		case *KeyInfo:
			ki := &keyInfoImage{NField: p4.NField, SortDesc: p4.SortDesc}
			for _, coll := range p4.Colls {
				name := ""
				if coll != nil {
					name = coll.Name
				}
				ki.Colls = append(ki.Colls, name)
			}
			ii.P4Kind = p4KeyInfo
			ii.P4Key = ki
		case *FuncDef:
			ii.P4Kind = p4Func
			ii.P4Name = p4.Name
			ii.P4NArg = p4.NArg
		default:
			return nil, errors.Errorf(errors.KT_PROGRAM, "pc %d: P4 of type %T is not serializable", i, in.P4)
		}
		img.Instructions[i] = ii
	}
	return progEncMode.Marshal(&img)
}

// UnmarshalProgram reconstructs a program from its image. The result is
// unresolved; callers run Resolve before execution as with any other
// program.
func UnmarshalProgram(data []byte) (*Program, error) {
	var img progImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, errors.Wrap(errors.KT_IOERR, "decode program image", err)
	}
	if img.Version != progImageVersion {
		return nil, errors.Errorf(errors.KT_IOERR, "program image version %d not supported", img.Version)
	}
	p := &Program{
		NumRegs:      img.NumRegs,
		NumCursors:   img.NumCursors,
		ErrorHandler: img.ErrorHandler,
		Instructions: make([]Instruction, len(img.Instructions)),
	}
	for i, ii := range img.Instructions {
		op, ok := OpcodeByName(ii.Op)
		if !ok {
			return nil, errors.Errorf(errors.KT_PROGRAM, "pc %d: unknown opcode %q", i, ii.Op)
		}
		in := Instruction{Op: op, P1: ii.P1, P2: ii.P2, P3: ii.P3, P5: ii.P5}
		switch ii.P4Kind {
		case p4None:
		case p4Int:
			in.P4 = int(ii.P4Int)
		case p4Int64:
			in.P4 = ii.P4Int
		case p4Real:
			in.P4 = ii.P4Real
		case p4Text:
			in.P4 = ii.P4Text
		case p4Blob:
			in.P4 = ii.P4Blob
		case p4KeyInfo:
			if ii.P4Key == nil {
				return nil, errors.Errorf(errors.KT_IOERR, "pc %d: key description missing from image", i)
			}
			ki := &KeyInfo{NField: ii.P4Key.NField, SortDesc: ii.P4Key.SortDesc}
			for _, name := range ii.P4Key.Colls {
				ki.Colls = append(ki.Colls, collByName(name))
			}
			in.P4 = ki
		case p4Func:
			def, err := LookupFunc(ii.P4Name, ii.P4NArg)
			if err != nil {
				return nil, errors.Wrap(errors.KT_PROGRAM, "resolve function reference", err)
			}
			in.P4 = def
		default:
			return nil, errors.Errorf(errors.KT_PROGRAM, "pc %d: unknown P4 kind %d", i, ii.P4Kind)
		}
		p.Instructions[i] = in
	}
	return p, nil
}

func collByName(name string) *CollSeq {
	switch name {
	case NoCaseColl.Name:
		return NoCaseColl
	default:
		return BinaryColl
	}
}
