package sink

import "github.com/foomo/gatherer/vo"

// Sink receives extracted records. Write may buffer; Flush drains the
// buffer in the crawl's DRAINING phase, Close releases the destination.
type Sink interface {
	Write(record vo.Record) error
	Flush() error
	Close() error
}

// Multi fans records out to several sinks.
type Multi []Sink

func (m Multi) Write(record vo.Record) error {
	for _, s := range m {
		if err := s.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Flush() error {
	for _, s := range m {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Collect keeps records in memory.
type Collect struct {
	Records []vo.Record
}

func (c *Collect) Write(record vo.Record) error {
	c.Records = append(c.Records, record)
	return nil
}

func (c *Collect) Flush() error { return nil }
func (c *Collect) Close() error { return nil }
