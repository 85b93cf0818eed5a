package ir

import (
	"fmt"
	"strings"
)

// Disassemble renders a module as human-readable text for tooling and
// debugging. The output is not a wire format.
func Disassemble(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module version=%d consts=%d funcs=%d\n",
		m.Version, len(m.Consts), len(m.Funcs))
	if m.Entrypoint != nil {
		fmt.Fprintf(&b, "entrypoint fn%d\n", *m.Entrypoint)
	}
	for i, c := range m.Consts {
		fmt.Fprintf(&b, "const %d: %s\n", i, constString(c))
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		fmt.Fprintf(&b, "fn%d (params=%d returns=%d)\n",
			f.ID, f.ParamCount, f.ReturnCount)
		for j := range f.Blocks {
			blk := &f.Blocks[j]
			fmt.Fprintf(&b, "  L%d:\n", blk.Label)
			for _, in := range blk.Code {
				fmt.Fprintf(&b, "    %s\n", in)
			}
		}
	}
	return b.String()
}

func constString(c Const) string {
	switch c.Kind {
	case ConstInt:
		return "int " + c.Int.String()
	case ConstBytes:
		return fmt.Sprintf("bytes 0x%x", c.Bytes)
	default:
		parts := make([]string, len(c.Tuple))
		for i, e := range c.Tuple {
			parts[i] = constString(e)
		}
		return "tuple(" + strings.Join(parts, ", ") + ")"
	}
}
