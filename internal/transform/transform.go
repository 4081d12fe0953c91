// Package transform turns raw availability log lines into the
// pipe-delimited records loaded into the warehouse.
package transform

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	fieldCount = 15
	dateLayout = "2/1/2006"
	maxLine    = 1 << 20
)

var availability = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}\s\S+\|\d+\|AVA`)

// Record is one transformed availability line.
type Record struct {
	RequestDate    string
	Destinations   string
	DaysAdvance    int
	HotelsReturned int
}

func (r Record) String() string {
	return fmt.Sprintf("%s|%s|%d|%d", r.RequestDate, r.Destinations, r.DaysAdvance, r.HotelsReturned)
}

// SortDestinations sorts the '#'-joined destination codes.
func SortDestinations(destinations string) string {
	codes := strings.Split(destinations, "#")
	if len(codes) == 1 {
		return destinations
	}
	sort.Strings(codes)
	return strings.Join(codes, "#")
}

// DaysAdvance returns the number of days from request to entry, both
// formatted DD/MM/YYYY.
func DaysAdvance(request, entry string) (int, error) {
	from, err := time.Parse(dateLayout, request)
	if err != nil {
		return 0, fmt.Errorf("request date: %w", err)
	}
	to, err := time.Parse(dateLayout, entry)
	if err != nil {
		return 0, fmt.Errorf("entry date: %w", err)
	}
	return int(to.Sub(from).Hours() / 24), nil
}

// Line transforms a single line. ok is false for lines that are not
// availability records or cannot be parsed.
func Line(line string) (rec Record, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if !availability.MatchString(line) {
		return Record{}, false
	}
	fields := strings.Split(line, "|")
	if len(fields) != fieldCount {
		return Record{}, false
	}

	rec.RequestDate = fields[0][:10]
	days, err := DaysAdvance(rec.RequestDate, fields[6])
	if err != nil {
		return Record{}, false
	}
	hotels, err := strconv.Atoi(strings.TrimSpace(fields[13]))
	if err != nil {
		return Record{}, false
	}
	rec.Destinations = SortDestinations(fields[4])
	rec.DaysAdvance = days
	rec.HotelsReturned = hotels
	return rec, true
}

// Stats counts the lines seen by Run.
type Stats struct {
	Read    int
	Written int
}

// Dropped is the number of lines that produced no record.
func (s Stats) Dropped() int { return s.Read - s.Written }

// Run transforms every line of r into w, dropping lines that do not
// parse. Lines longer than maxLine are drained and dropped. Records
// written before a read or write error are flushed.
func Run(r io.Reader, w io.Writer) (st Stats, err error) {
	br := bufio.NewReaderSize(r, 64*1024)
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("writing record: %w", ferr)
		}
	}()

	for {
		line, tooLong, rerr := readLine(br)
		if rerr != nil && rerr != io.EOF {
			return st, fmt.Errorf("reading input: %w", rerr)
		}
		if rerr == io.EOF && len(line) == 0 && !tooLong {
			return st, nil
		}
		st.Read++
		if rec, ok := Line(string(line)); ok && !tooLong {
			if _, err := fmt.Fprintln(bw, rec.String()); err != nil {
				return st, fmt.Errorf("writing record: %w", err)
			}
			st.Written++
		}
		if rerr == io.EOF {
			return st, nil
		}
	}
}

// readLine returns the next line without its terminator. A line over
// maxLine bytes is consumed up to its newline and reported as tooLong
// with no content.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLine+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if len(line) > 0 && line[len(line)-1] == '\n' {
			line = line[:len(line)-1]
		}
		return line, tooLong, err
	}
}
