package vba

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// dir stream record identifiers.
const (
	recCodePage          = 0x0003
	recProjectVersion    = 0x0009
	recDirTerminator     = 0x0010
	recModuleName        = 0x0019
	recModuleStreamName  = 0x001A
	recModuleType        = 0x0021
	recModuleTypeClass   = 0x0022
	recModuleTerminator  = 0x002B
	recModuleOffset      = 0x0031
	recStreamNameUnicode = 0x0032
	recModuleNameUnicode = 0x0047
)

// projectVersionSize is the payload of the version record, which does not
// match its size field.
const projectVersionSize = 6

type dirModule struct {
	name       string
	streamName string
	offset     uint32
	kind       ModuleKind
}

type dirInfo struct {
	codePage uint16
	modules  []dirModule
}

// parseDir walks the records of a decompressed dir stream.
func parseDir(data []byte) (*dirInfo, error) {
	info := &dirInfo{codePage: 1252}
	cur := -1
	var rawNames [][]byte
	var rawStreams [][]byte

	pos := 0
	for pos+6 <= len(data) {
		id := binary.LittleEndian.Uint16(data[pos:])
		size := int(binary.LittleEndian.Uint32(data[pos+2:]))
		pos += 6
		if id == recProjectVersion {
			size = projectVersionSize
		}
		if size < 0 || pos+size > len(data) {
			return nil, fmt.Errorf("dir record 0x%04X at %d overruns stream", id, pos-6)
		}
		body := data[pos : pos+size]
		pos += size

		switch id {
		case recCodePage:
			if len(body) >= 2 {
				info.codePage = binary.LittleEndian.Uint16(body)
			}
		case recModuleName:
			info.modules = append(info.modules, dirModule{kind: KindStandard})
			rawNames = append(rawNames, body)
			rawStreams = append(rawStreams, nil)
			cur = len(info.modules) - 1
		case recModuleNameUnicode:
			if cur >= 0 {
				info.modules[cur].name = decodeUTF16(body)
			}
		case recModuleStreamName:
			if cur >= 0 {
				rawStreams[cur] = body
			}
		case recStreamNameUnicode:
			if cur >= 0 {
				info.modules[cur].streamName = decodeUTF16(body)
			}
		case recModuleOffset:
			if cur >= 0 && len(body) >= 4 {
				info.modules[cur].offset = binary.LittleEndian.Uint32(body)
			}
		case recModuleType:
			if cur >= 0 {
				info.modules[cur].kind = KindStandard
			}
		case recModuleTypeClass:
			if cur >= 0 {
				info.modules[cur].kind = KindClass
			}
		case recModuleTerminator:
			cur = -1
		case recDirTerminator:
			pos = len(data)
		}
	}

	// Unicode names win; fall back to the code page names.
	enc := codePageEncoding(info.codePage)
	for i := range info.modules {
		m := &info.modules[i]
		if m.name == "" {
			m.name = decodeBytes(enc, rawNames[i])
		}
		if m.streamName == "" {
			m.streamName = decodeBytes(enc, rawStreams[i])
		}
		if m.streamName == "" {
			m.streamName = m.name
		}
	}
	return info, nil
}

// projectKinds reads the PROJECT stream, which tells document modules and
// forms apart from plain class modules.
func projectKinds(data []byte, enc encoding.Encoding) map[string]ModuleKind {
	kinds := make(map[string]ModuleKind)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := decodeBytes(enc, sc.Bytes())
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		name := value
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i]
		}
		switch key {
		case "Module":
			kinds[name] = KindStandard
		case "Class":
			kinds[name] = KindClass
		case "Document":
			kinds[name] = KindDocument
		case "BaseClass":
			kinds[name] = KindForm
		}
	}
	return kinds
}

func codePageEncoding(cp uint16) encoding.Encoding {
	switch cp {
	case 65001:
		return unicode.UTF8
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 1255:
		return charmap.Windows1255
	case 1256:
		return charmap.Windows1256
	case 1257:
		return charmap.Windows1257
	case 1258:
		return charmap.Windows1258
	case 874:
		return charmap.Windows874
	case 932:
		return japanese.ShiftJIS
	case 936:
		return simplifiedchinese.GBK
	case 949:
		return korean.EUCKR
	case 950:
		return traditionalchinese.Big5
	case 10000:
		return charmap.Macintosh
	default:
		return charmap.Windows1252
	}
}

func decodeBytes(enc encoding.Encoding, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decodeUTF16(b []byte) string {
	return decodeBytes(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), b)
}
