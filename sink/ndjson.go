package sink

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/foomo/gatherer/vo"
)

// NDJSON writes one JSON object per record per line. Field order follows
// the crawl schema, provenance comes last.
type NDJSON struct {
	w      *bufio.Writer
	closer io.Closer
	fields []string
}

// NewNDJSON wraps a writer. fieldOrder is the schema's column order.
func NewNDJSON(w io.Writer, fieldOrder []string) *NDJSON {
	n := &NDJSON{
		w:      bufio.NewWriter(w),
		fields: fieldOrder,
	}
	if closer, ok := w.(io.Closer); ok && w != os.Stdout {
		n.closer = closer
	}
	return n
}

// OpenNDJSON opens path for writing, "-" meaning stdout.
func OpenNDJSON(path string, fieldOrder []string) (*NDJSON, error) {
	if path == "-" || path == "" {
		return NewNDJSON(os.Stdout, fieldOrder), nil
	}
	f, errCreate := os.Create(path)
	if errCreate != nil {
		return nil, errCreate
	}
	return NewNDJSON(f, fieldOrder), nil
}

func (n *NDJSON) Write(record vo.Record) error {
	line, errMarshal := marshalOrdered(record, n.fields)
	if errMarshal != nil {
		return errMarshal
	}
	if _, errWrite := n.w.Write(line); errWrite != nil {
		return errWrite
	}
	return n.w.WriteByte('\n')
}

func (n *NDJSON) Flush() error {
	return n.w.Flush()
}

func (n *NDJSON) Close() error {
	if errFlush := n.w.Flush(); errFlush != nil {
		return errFlush
	}
	if n.closer != nil {
		return n.closer.Close()
	}
	return nil
}

// marshalOrdered builds the JSON object by hand so the schema's field
// order survives; encoding/json would sort map keys.
func marshalOrdered(record vo.Record, fields []string) ([]byte, error) {
	buf := []byte{'{'}
	appendField := func(name string, value interface{}) error {
		nameJSON, errName := json.Marshal(name)
		if errName != nil {
			return errName
		}
		valueJSON, errValue := json.Marshal(value)
		if errValue != nil {
			return errValue
		}
		if len(buf) > 1 {
			buf = append(buf, ',')
		}
		buf = append(buf, nameJSON...)
		buf = append(buf, ':')
		buf = append(buf, valueJSON...)
		return nil
	}
	for _, name := range fields {
		if value, ok := record.Fields[name]; ok {
			if err := appendField(name, value); err != nil {
				return nil, err
			}
		}
	}
	if err := appendField("source_url", record.SourceURL); err != nil {
		return nil, err
	}
	if err := appendField("extracted_at", record.ExtractedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return append(buf, '}'), nil
}
