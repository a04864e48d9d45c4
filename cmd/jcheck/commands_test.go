package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
)

const (
	iconst0 = 0x03
	ireturn = 0xac
	freturn = 0xae
)

func TestRunVerify(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	writeClass(t, dir, returning("p/Good", iconst0, ireturn), "p/Good")
	writeClass(t, dir, returning("p/Bad", iconst0, freturn), "p/Bad")

	jar := filepath.Join(t.TempDir(), "lib.jar")
	f, err := os.Create(jar)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("q/Other.class")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(returning("q/Other", iconst0, ireturn).bytes())
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var out bytes.Buffer
	err = runVerify(context.Background(), &out, []string{dir, jar}, 4, nil)
	if err == nil {
		t.Fatal("Expected p/Bad to fail verification")
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("error = %v, want one aggregated failure", err)
	}
	if !errors.Is(err, classfile.ErrVerificationFailure) {
		t.Errorf("error = %v, want it to match ErrVerificationFailure", err)
	}

	for _, want := range []string{
		"[OK] " + dir + "!p/Good.class",
		"[FAIL] " + dir + "!p/Bad.class: VerifyError",
		"[OK] " + jar + "!q/Other.class",
		"3 classes checked, 1 failed",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestRunVerifyReportsUnreadablePaths(t *testing.T) {
	color.NoColor = true
	missing := filepath.Join(t.TempDir(), "missing.jar")
	var out bytes.Buffer
	err := runVerify(context.Background(), &out, []string{missing}, 1, nil)
	if err == nil {
		t.Fatal("Expected a missing path to fail")
	}
	if !strings.Contains(out.String(), "[FAIL] "+missing) {
		t.Errorf("output = %q, want a FAIL line for the missing path", out.String())
	}
}

func TestRunParse(t *testing.T) {
	dir := t.TempDir()
	good := writeClass(t, dir, returning("p/Good", iconst0, ireturn), "p/Good")
	bad := writeClass(t, dir, returning("p/Bad", iconst0, freturn), "p/Bad")

	var out bytes.Buffer
	if err := runParse(&out, []string{good, bad}, "line", true, nil); err != nil {
		t.Fatalf("runParse failed: %v", err)
	}
	text := out.String()
	if !strings.HasPrefix(text, "class\tp.Good\t52.0\t") {
		t.Errorf("output starts with %q, want the p.Good class record", text[:min(len(text), 40)])
	}
	if !strings.Contains(text, "method\tm\tint\t-\tpublic,static\tstack=1,locals=4,length=2") {
		t.Errorf("Expected the verified method of p.Good in:\n%s", text)
	}
	if !strings.Contains(text, "\tpublic,static\tVerifyError: p/Bad.m()I at offset 1 (freturn)") {
		t.Errorf("Expected the verify error of p.Bad in:\n%s", text)
	}

	if err := runParse(&out, []string{good}, "xml", false, nil); err == nil {
		t.Error("Expected an unknown format to fail")
	}
	if err := runParse(&out, []string{filepath.Join(dir, "none.class")}, "json", false, nil); err == nil {
		t.Error("Expected a missing file to fail")
	}
}

func TestRunResolve(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, newTestClass("lib/Util").
		method(classfile.AccPublic|classfile.AccStatic|classfile.AccNative, "run", "()V", 0, nil), "lib/Util")
	main := newTestClass("app/Main")
	main.methodref("lib/Util", "run", "()V")
	main.methodref("lib/Util", "gone", "()V")
	writeClass(t, dir, main, "app/Main")

	var out bytes.Buffer
	if err := runResolve(&out, []string{dir}, "app.Main", nil); err != nil {
		t.Fatalf("runResolve failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"app/Main from " + dir,
		"Methodref lib/Util.run:()V (resolved)",
		"NoSuchMethodError: lib/Util.gone()V",
		"4 entries resolved, 1 failed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}

	if err := runResolve(&out, []string{dir}, "app/Missing", nil); classfile.JavaErrorName(err) != classfile.NoClassDefFoundError {
		t.Errorf("runResolve(app/Missing) = %v, want NoClassDefFoundError", err)
	}
}
