package parser

// registerNames is the full set of register mnemonics the lexer recognizes
// as TokenRegister rather than TokenIdentifier. The canonical register
// descriptors (size, encoding index, segment/x87 flags) live in the asm
// package; the lexer only needs to know which identifiers are registers.
var registerNames = map[string]bool{
	"al": true, "cl": true, "dl": true, "bl": true,
	"ah": true, "ch": true, "dh": true, "bh": true,
	"ax": true, "cx": true, "dx": true, "bx": true,
	"sp": true, "bp": true, "si": true, "di": true,
	"eax": true, "ecx": true, "edx": true, "ebx": true,
	"esp": true, "ebp": true, "esi": true, "edi": true,
	"cs": true, "ds": true, "es": true, "ss": true, "fs": true, "gs": true,
	"st0": true, "st1": true, "st2": true, "st3": true,
	"st4": true, "st5": true, "st6": true, "st7": true, "st": true,
}

// IsRegisterName reports whether literal (case-insensitive) names a register.
func IsRegisterName(literal string) bool {
	return registerNames[lowerASCII(literal)]
}
