package classfile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dhamidi/dexpatch/program"
)

// classWriter assembles class file bytes for tests.
type classWriter struct {
	bytes.Buffer
}

func (w *classWriter) u1(v uint8)  { w.WriteByte(v) }
func (w *classWriter) u2(v uint16) { binary.Write(w, binary.BigEndian, v) }
func (w *classWriter) u4(v uint32) { binary.Write(w, binary.BigEndian, v) }

func (w *classWriter) utf8(s string) {
	w.u1(uint8(ConstantUtf8))
	w.u2(uint16(len(s)))
	w.WriteString(s)
}

func (w *classWriter) ref(tag ConstantTag, index uint16) {
	w.u1(uint8(tag))
	w.u2(index)
}

func (w *classWriter) method(flags, name, desc uint16, code []byte) {
	w.u2(flags)
	w.u2(name)
	w.u2(desc)
	w.u2(1)
	w.u2(9) // "Code"
	w.u4(uint32(12 + len(code)))
	w.u2(2) // max_stack
	w.u2(1) // max_locals
	w.u4(uint32(len(code)))
	w.Write(code)
	w.u2(0) // exception_table_length
	w.u2(0) // attributes_count
}

// greeterClass is the compiled form of
//
//	public class com.example.Greeter {
//	    private String name;
//	    public Greeter() { super(); }
//	    public String greet() { ldc_w "fallback"; pop; return "hello"; }
//	}
//
// with an unused long constant in the pool.
func greeterClass() []byte {
	var w classWriter
	w.u4(Magic)
	w.u2(0)
	w.u2(52)

	w.u2(18)
	w.utf8("com/example/Greeter")  // 1
	w.ref(ConstantClass, 1)        // 2
	w.utf8("java/lang/Object")     // 3
	w.ref(ConstantClass, 3)        // 4
	w.utf8("hello")                // 5
	w.ref(ConstantString, 5)       // 6
	w.utf8("greet")                // 7
	w.utf8("()Ljava/lang/String;") // 8
	w.utf8("Code")                 // 9
	w.u1(uint8(ConstantLong))      // 10, 11
	w.u4(0)
	w.u4(42)
	w.utf8("fallback")           // 12
	w.ref(ConstantString, 12)    // 13
	w.utf8("<init>")             // 14
	w.utf8("()V")                // 15
	w.utf8("name")               // 16
	w.utf8("Ljava/lang/String;") // 17

	w.u2(0x0021) // public super
	w.u2(2)
	w.u2(4)
	w.u2(0)

	w.u2(1)
	w.u2(0x0002)
	w.u2(16)
	w.u2(17)
	w.u2(0)

	w.u2(2)
	w.method(0x0001, 14, 15, []byte{0x2a, 0xb7, 0x00, 0x00, 0xb1})
	w.method(0x0001, 7, 8, []byte{0x13, 0x00, 0x0d, 0x57, 0x12, 0x06, 0xb0})

	w.u2(0)
	return w.Bytes()
}

func TestReadClass(t *testing.T) {
	def, err := ReadClass(bytes.NewReader(greeterClass()))
	if err != nil {
		t.Fatalf("ReadClass: %v", err)
	}

	want := program.ClassDef{
		Name:        "Lcom/example/Greeter;",
		AccessFlags: program.AccPublic,
		SuperClass:  "Ljava/lang/Object;",
		Strings:     []string{"hello", "fallback"},
		Fields: []program.FieldDef{
			{Name: "name", AccessFlags: program.AccPrivate, Type: "Ljava/lang/String;"},
		},
		Methods: []program.MethodDef{
			{Name: "<init>", AccessFlags: program.AccPublic | program.AccConstructor, Return: "V"},
			{Name: "greet", AccessFlags: program.AccPublic, Return: "Ljava/lang/String;", Strings: []string{"fallback", "hello"}},
		},
	}
	if !reflect.DeepEqual(def, want) {
		t.Errorf("ReadClass() =\n%+v\nwant\n%+v", def, want)
	}

	c, err := program.NewClass(def)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Method("greet", "()Ljava/lang/String;").HasString("fallback") {
		t.Error("greet should reference the ldc_w literal")
	}
	if c.Method("<init>", "").HasString("hello") {
		t.Error("constructor loads no strings")
	}
}

func TestParseErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		data := greeterClass()
		data[0] = 0
		if _, err := Parse(bytes.NewReader(data)); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		data := greeterClass()
		if _, err := Parse(bytes.NewReader(data[:len(data)-10])); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestInstructionLength(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want int
	}{
		{"nop", []byte{0x00}, 0, 1},
		{"bipush", []byte{0x10, 0x05}, 0, 2},
		{"invokeinterface", []byte{0xb9, 0, 1, 1, 0}, 0, 5},
		{"wide iload", []byte{0xc4, 0x15, 0, 1}, 0, 4},
		{"wide iinc", []byte{0xc4, 0x84, 0, 1, 0, 1}, 0, 6},
		{
			// pc 1: opcode, two padding bytes, default, low=0, high=1, two offsets
			"tableswitch",
			append([]byte{0x00, 0xaa, 0, 0}, be(0, 0, 1, 8, 8)...),
			1, 3 + 12 + 8,
		},
		{
			"lookupswitch",
			append([]byte{0xab, 0, 0, 0}, be(0, 1, 7, 16)...),
			0, 4 + 8 + 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instructionLength(tt.code, tt.pc)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("instructionLength() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := instructionLength([]byte{0xfe}, 0); err == nil {
		t.Error("expected an error for an unknown opcode")
	}
}

func TestSwitchPastEnd(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		// high-low+1 overflows int32
		{"tableswitch full range", append([]byte{0xaa, 0, 0, 0}, be(0, -2147483648, 2147483647, 8)...)},
		{"tableswitch short", append([]byte{0xaa, 0, 0, 0}, be(0, 0, 3, 8, 8)...)},
		{"lookupswitch short", append([]byte{0xab, 0, 0, 0}, be(0, 2, 7, 16)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if n, err := instructionLength(tt.code, 0); err == nil {
				t.Errorf("instructionLength() = %d, want an error", n)
			}
		})
	}
}

func be(values ...int32) []byte {
	out := make([]byte, 0, 4*len(values))
	for _, v := range values {
		out = binary.BigEndian.AppendUint32(out, uint32(v))
	}
	return out
}

func TestDecodeModifiedUtf8(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte{0xC0, 0x80}, "\x00"},
		{[]byte{0xC3, 0xA9}, "é"},
		{[]byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}, "😀"},
	}
	for _, tt := range tests {
		if got := decodeModifiedUtf8(tt.in); got != tt.want {
			t.Errorf("decodeModifiedUtf8(% x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jar := filepath.Join(dir, "app.jar")
	f, err := os.Create(jar)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, data := range map[string][]byte{
		"com/example/Greeter.class":   greeterClass(),
		"META-INF/MANIFEST.MF":        []byte("Manifest-Version: 1.0\n"),
		"META-INF/versions/9/x.class": []byte("not a class"),
		"module-info.class":           []byte("not a class either"),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	p, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
	if _, ok := p.Lookup("Lcom/example/Greeter;"); !ok {
		t.Error("Greeter not loaded")
	}

	if _, err := Load(filepath.Join(dir, "missing.class")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
