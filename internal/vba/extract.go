package vba

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/richardlehane/mscfb"
	"github.com/xuri/excelize/v2"
)

// oleSignature starts every OLE compound file.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// SupportedExtensions are the workbook types ExtractFile accepts.
var SupportedExtensions = map[string]bool{
	".xlsm": true, ".xltm": true, ".xlam": true, ".xlsx": true, ".xls": true,
}

// ExtractFile reads the VBA project of the workbook at path. A workbook
// without macros yields ErrNoMacros; anything else that goes wrong is an
// *ExtractError.
func ExtractFile(path string) (*Project, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &ExtractError{Path: path, Err: ErrNotFound}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, &ExtractError{Path: path, Err: fmt.Errorf("%w %q, expected .xlsm or .xls", ErrUnsupported, ext)}
	}

	head, err := readHead(path, len(oleSignature))
	if err != nil {
		return nil, &ExtractError{Path: path, Err: err}
	}
	if bytes.Equal(head, oleSignature) {
		f, err := os.Open(path)
		if err != nil {
			return nil, &ExtractError{Path: path, Err: err}
		}
		defer f.Close()
		p, err := ReadProject(f)
		return wrap(path, p, err)
	}

	bin, err := vbaProjectPart(path)
	if err != nil {
		return nil, err
	}
	p, err := ReadProject(bytes.NewReader(bin))
	return wrap(path, p, err)
}

func wrap(path string, p *Project, err error) (*Project, error) {
	if err == nil || errors.Is(err, ErrNoMacros) || errors.Is(err, ErrNoCode) {
		return p, err
	}
	return nil, &ExtractError{Path: path, Err: err}
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}

// vbaProjectPart opens an OOXML workbook and returns its vbaProject.bin part.
func vbaProjectPart(path string) ([]byte, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ExtractError{Path: path, Err: fmt.Errorf("is this a valid workbook? %w", err)}
	}
	defer f.Close()

	if v, ok := f.Pkg.Load("xl/vbaProject.bin"); ok {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}

	var found []byte
	f.Pkg.Range(func(k, v any) bool {
		name, _ := k.(string)
		if strings.HasSuffix(strings.ToLower(name), "vbaproject.bin") {
			found, _ = v.([]byte)
			return false
		}
		return true
	})
	if found == nil {
		return nil, ErrNoMacros
	}
	return found, nil
}

// ReadProject parses a VBA project from an OLE compound file. For legacy
// workbooks the whole .xls file is passed; the project storage is found
// wherever it lives.
func ReadProject(r io.ReaderAt) (*Project, error) {
	doc, err := mscfb.New(r)
	if err != nil {
		return nil, fmt.Errorf("could not open OLE container: %w", err)
	}

	streams := make(map[string][]byte)
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size <= 0 {
			continue
		}
		buf := make([]byte, entry.Size)
		n, err := io.ReadFull(entry, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("could not read stream %s: %w", entry.Name, err)
		}
		key := strings.Join(append(append([]string{}, entry.Path...), entry.Name), "/")
		streams[key] = buf[:n]
	}

	var dirKeys []string
	for k := range streams {
		if k == "VBA/dir" || strings.HasSuffix(k, "/VBA/dir") {
			dirKeys = append(dirKeys, k)
		}
	}
	if len(dirKeys) == 0 {
		return nil, ErrNoMacros
	}
	sort.Strings(dirKeys)
	dirKey := dirKeys[0]
	vbaRoot := strings.TrimSuffix(dirKey, "dir")
	projectRoot := strings.TrimSuffix(vbaRoot, "VBA/")

	dirData, err := Decompress(streams[dirKey])
	if err != nil {
		return nil, fmt.Errorf("dir stream: %w", err)
	}
	info, err := parseDir(dirData)
	if err != nil {
		return nil, err
	}

	enc := codePageEncoding(info.codePage)
	kinds := projectKinds(streams[projectRoot+"PROJECT"], enc)

	p := &Project{CodePage: info.codePage}
	for _, dm := range info.modules {
		raw, ok := streams[vbaRoot+dm.streamName]
		if !ok {
			return nil, fmt.Errorf("module stream %q is missing", dm.streamName)
		}
		if int(dm.offset) > len(raw) {
			return nil, fmt.Errorf("module %q: source offset %d beyond stream", dm.name, dm.offset)
		}
		code, err := Decompress(raw[dm.offset:])
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", dm.name, err)
		}

		kind := dm.kind
		if k, ok := kinds[dm.name]; ok && (dm.kind != KindStandard || k == KindStandard) {
			kind = k
		}
		p.Modules = append(p.Modules, Module{
			Name: dm.name,
			Kind: kind,
			Code: decodeBytes(enc, code),
		})
	}
	return p, nil
}

// ExtractSource reads the workbook and assembles the source of modules whose
// file name ends in suffix.
func ExtractSource(path, suffix string) (string, *Project, error) {
	p, err := ExtractFile(path)
	if err != nil {
		return "", nil, err
	}
	src, err := p.Source(suffix)
	if err != nil {
		return "", p, err
	}
	return src, p, nil
}
