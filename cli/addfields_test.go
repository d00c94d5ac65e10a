package cli

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBox(t *testing.T) {
	page, rect, err := parseBox("2/72,600,300,650.5")
	if err != nil {
		t.Fatal(err)
	}
	if page != 2 {
		t.Errorf("page = %d, want 2", page)
	}
	if rect != [4]float64{72, 600, 300, 650.5} {
		t.Errorf("rect = %v", rect)
	}

	for _, bad := range []string{
		"",
		"1",
		"0/72,600,300,650",
		"x/72,600,300,650",
		"1/72,600,300",
		"1/72,600,300,650,700",
		"1/72,600,abc,650",
	} {
		if _, _, err := parseBox(bad); err == nil {
			t.Errorf("parseBox(%q) accepted invalid input", bad)
		}
	}
}

func TestParseFieldSpec(t *testing.T) {
	spec, err := parseFieldSpec("1/150,100,400,160/Employee")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "Employee" || spec.Page != 1 {
		t.Errorf("unexpected spec %+v", spec)
	}
	if spec.Rect != [4]float64{150, 100, 400, 160} {
		t.Errorf("rect = %v", spec.Rect)
	}

	// Everything after the second separator belongs to the name.
	spec, err = parseFieldSpec("1/0,0,10,10/Approvals/Legal")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "Approvals/Legal" {
		t.Errorf("name = %q", spec.Name)
	}

	for _, bad := range []string{
		"",
		"1/150,100,400,160",
		"1/150,100,400,160/",
		"nope/150,100,400,160/Sig",
	} {
		if _, err := parseFieldSpec(bad); err == nil {
			t.Errorf("parseFieldSpec(%q) accepted invalid input", bad)
		}
	}
}

func TestAddFieldsCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeBase(t, dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")

	_, code := run(t, AddFieldsCommand, "addfields", input, output,
		"1/150,100,400,160/Employee",
		"1/150,200,400,260/Manager")
	if code != 0 {
		t.Fatalf("addfields exited with %d", code)
	}

	out, code := run(t, ListCommand, "list", output)
	if code != 0 {
		t.Fatalf("list exited with %d", code)
	}
	if out != "Employee:EMPTY\nManager:EMPTY\n" {
		t.Errorf("unexpected fields after addfields: %q", out)
	}
}

func TestAddFieldsCommandDuplicateName(t *testing.T) {
	dir := t.TempDir()
	input := writeBase(t, dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")

	_, code := run(t, AddFieldsCommand, "addfields", input, output,
		"1/150,100,400,160/Employee",
		"1/150,200,400,260/Employee")
	if code != 1 {
		t.Fatalf("addfields exited with %d, want 1", code)
	}
}

func TestAddFieldsCommandInvalidSpec(t *testing.T) {
	dir := t.TempDir()
	input := writeBase(t, dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")

	out, code := run(t, AddFieldsCommand, "addfields", input, output, "garbage")
	if code != 1 {
		t.Fatalf("addfields exited with %d, want 1 (stdout %q)", code, out)
	}
}

func TestAddFieldsCommandArgCount(t *testing.T) {
	_, code := run(t, AddFieldsCommand, "addfields", "in.pdf", "out.pdf")
	if code != 1 {
		t.Fatalf("addfields exited with %d, want 1", code)
	}
}

func TestAddFieldsThenSign(t *testing.T) {
	dir := t.TempDir()
	creds := newCredentials(t, dir)
	base := writeBase(t, dir, "in.pdf")
	withFields := filepath.Join(dir, "fields.pdf")
	signed := filepath.Join(dir, "signed.pdf")

	_, code := run(t, AddFieldsCommand, "addfields", base, withFields,
		"1/150,100,400,160/Employee")
	if code != 0 {
		t.Fatalf("addfields exited with %d", code)
	}

	_, code = run(t, SignCommand, "sign",
		"-key", creds.keyPath, "-cert", creds.certPath,
		"-field", "Employee", "-visible", "-name", "Alice Example",
		withFields, signed)
	if code != 0 {
		t.Fatalf("sign exited with %d", code)
	}

	verifySigned(t, signed, creds.pki, "Employee")

	out, code := run(t, ListCommand, "list", signed)
	if code != 0 {
		t.Fatalf("list exited with %d", code)
	}
	if !strings.Contains(out, "Employee:FILLED") {
		t.Errorf("field not reported filled:\n%s", out)
	}
}
