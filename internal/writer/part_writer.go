// Package writer implements the dataset writer (§4.6): it turns the record
// stream the scheduler produces into sharded, schema-validated,
// zstd-compressed JSONL parts with a deterministic record order, plus the
// content-addressed blob store for raw bodies. It is new relative to the
// teacher, grounded on the teacher's SHA-256 hashing discipline
// (DynamicCrawler's content-hash dedup) and on HelgeSverre-crawldocs's
// atomic write-temp-then-rename manifest save pattern, generalized here to
// every part file the writer rotates.
package writer

import (
	"bufio"
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atlascrawl/atlas/internal/model"
)

const defaultRunSize = 5000
const defaultMaxRecordsPerPart = 50000

// PartWriter streams records of type T into a dataset, buffering them into
// sorted runs and merging those runs into compressed, hash-verified parts
// at Finalize time. T must marshal to a JSON object.
type PartWriter[T any] struct {
	datasetName string
	version     string
	datasetDir  string
	schema      *jsonschema.Schema
	sortKey     func(T) string

	runSize           int
	maxRecordsPerPart int

	buffer   []T
	runFiles []string
	runDir   string
	startSeq int

	recordCount int64
}

// NewPartWriter creates a writer for one dataset, rooted at
// <outDir>/<datasetName>.<version>/ (§4.6.1, §6.1), with a nested "_runs"
// directory holding the intermediate sorted run files used for the
// external merge. If that directory already holds finalized parts or
// leftover run files from a prior session — a resumed crawl (§4.8) — the
// writer picks up numbering after the existing parts and reloads the
// leftover runs instead of losing the records they hold.
func NewPartWriter[T any](datasetName, version, outDir string, schema *jsonschema.Schema, sortKey func(T) string) (*PartWriter[T], error) {
	datasetDir := filepath.Join(outDir, datasetName+"."+version)
	runDir := filepath.Join(datasetDir, "_runs")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("writer: create run dir for %s: %w", datasetName, err)
	}

	nextSeq, err := nextPartSequence(datasetDir, datasetName, version)
	if err != nil {
		return nil, fmt.Errorf("writer: scan existing parts for %s: %w", datasetName, err)
	}
	runFiles, carried, err := reloadRuns(runDir)
	if err != nil {
		return nil, fmt.Errorf("writer: reload pending runs for %s: %w", datasetName, err)
	}

	return &PartWriter[T]{
		datasetName:       datasetName,
		startSeq:          nextSeq,
		version:           version,
		datasetDir:        datasetDir,
		schema:            schema,
		sortKey:           sortKey,
		runSize:           defaultRunSize,
		maxRecordsPerPart: defaultMaxRecordsPerPart,
		runDir:            runDir,
		runFiles:          runFiles,
		recordCount:       carried,
	}, nil
}

// partFilePrefix and partFileSuffix bound the part sequence number inside
// a finalized part's filename (§4.6.1): <dataset>.<version>_part_<NNN>.jsonl.zst.
func partFilePrefix(datasetName, version string) string {
	return fmt.Sprintf("%s.%s_part_", datasetName, version)
}

const partFileSuffix = ".jsonl.zst"

// nextPartSequence scans datasetDir for parts a prior session already
// finalized and returns the sequence number the next part should use, so a
// resumed writer appends rather than overwriting (§4.8, property 7).
func nextPartSequence(datasetDir, datasetName, version string) (int, error) {
	entries, err := os.ReadDir(datasetDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	prefix := partFilePrefix(datasetName, version)
	highest := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, partFileSuffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), partFileSuffix)
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// reloadRuns picks up any "run-*.jsonl" files left in runDir by a session
// that wrote records but never reached Finalize (Finalize removes runDir on
// success, so survivors mean a crash or an in-progress resume). It returns
// them in their original order, ready to be merged alongside new runs, and
// the total record count they hold so the dataset's final RecordCount stays
// correct.
func reloadRuns(runDir string) ([]string, int64, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, 0, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matched, _ := filepath.Match("run-*.jsonl", e.Name()); matched {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var files []string
	var total int64
	for _, name := range names {
		path := filepath.Join(runDir, name)
		n, err := countLines(path)
		if err != nil {
			return nil, 0, fmt.Errorf("count lines in %s: %w", path, err)
		}
		total += n
		files = append(files, path)
	}
	return files, total, nil
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var n int64
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// PartSequence returns the part sequence number this writer will start its
// next finalized part at — the value the checkpoint persists per dataset
// (§4.8). Resume correctness itself comes from scanning the dataset
// directory in NewPartWriter, not from trusting this stored number.
func (w *PartWriter[T]) PartSequence() int {
	return w.startSeq
}

// Write validates rec against the dataset's schema, buffers it, and flushes
// a sorted run to disk once the buffer reaches runSize.
func (w *PartWriter[T]) Write(rec T) error {
	if w.schema != nil {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("writer: marshal %s record: %w", w.datasetName, err)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("writer: re-decode %s record: %w", w.datasetName, err)
		}
		if err := w.schema.Validate(generic); err != nil {
			return fmt.Errorf("writer: %s record fails schema: %w", w.datasetName, err)
		}
	}

	w.buffer = append(w.buffer, rec)
	w.recordCount++
	if len(w.buffer) >= w.runSize {
		return w.flushRun()
	}
	return nil
}

type keyedRecord[T any] struct {
	key string
	rec T
}

func (w *PartWriter[T]) flushRun() error {
	if len(w.buffer) == 0 {
		return nil
	}

	keyed := make([]keyedRecord[T], len(w.buffer))
	for i, rec := range w.buffer {
		keyed[i] = keyedRecord[T]{key: w.sortKey(rec), rec: rec}
	}
	sort.Slice(keyed, func(i, j int) bool { return keyed[i].key < keyed[j].key })

	path := filepath.Join(w.runDir, fmt.Sprintf("run-%05d.jsonl", len(w.runFiles)))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writer: create run file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, kr := range keyed {
		line, err := json.Marshal(runLine[T]{Key: kr.key, Rec: kr.rec})
		if err != nil {
			return fmt.Errorf("writer: marshal run line: %w", err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writer: flush run file: %w", err)
	}

	w.runFiles = append(w.runFiles, path)
	w.buffer = w.buffer[:0]
	return nil
}

type runLine[T any] struct {
	Key string `json:"k"`
	Rec T      `json:"r"`
}

// heapItem is one active run's current record during the k-way merge.
type heapItem[T any] struct {
	key       string
	rec       T
	runIndex  int
	scanner   *bufio.Scanner
}

type recordHeap[T any] []*heapItem[T]

func (h recordHeap[T]) Len() int            { return len(h) }
func (h recordHeap[T]) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h recordHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recordHeap[T]) Push(x interface{}) { *h = append(*h, x.(*heapItem[T])) }
func (h *recordHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Finalize flushes any buffered records, merges every run file in sorted
// order, writes the merged stream out as zstd-compressed, size-bounded
// parts, and returns the dataset's manifest metadata. It removes the
// temporary run directory on success.
func (w *PartWriter[T]) Finalize() (meta model.DatasetMetadata, err error) {
	if err := w.flushRun(); err != nil {
		return model.DatasetMetadata{}, err
	}
	defer func() {
		if err == nil {
			os.RemoveAll(w.runDir)
		}
	}()

	if len(w.runFiles) == 0 {
		return model.DatasetMetadata{
			Name:       w.datasetName,
			Version:    w.version,
			SchemaPath: SchemaPath(w.datasetName),
		}, nil
	}

	files := make([]*os.File, len(w.runFiles))
	h := &recordHeap[T]{}
	heap.Init(h)

	for i, path := range w.runFiles {
		f, err := os.Open(path)
		if err != nil {
			return model.DatasetMetadata{}, fmt.Errorf("writer: open run file %s: %w", path, err)
		}
		files[i] = f
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		if item, ok := nextItem[T](scanner, i); ok {
			heap.Push(h, item)
		}
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	var parts []model.PartInfo
	partSeq := w.startSeq
	var partEnc *zstd.Encoder
	var partFile *os.File
	var partRecords int64
	var partRawBytes int64

	partFilename := func(seq int) string {
		return fmt.Sprintf("%s%03d%s", partFilePrefix(w.datasetName, w.version), seq, partFileSuffix)
	}

	startPart := func() error {
		path := filepath.Join(w.datasetDir, partFilename(partSeq)) + ".tmp"
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return err
		}
		partFile = f
		partEnc = enc
		partRecords = 0
		partRawBytes = 0
		return nil
	}

	finishPart := func() error {
		if partFile == nil {
			return nil
		}
		if err := partEnc.Close(); err != nil {
			return err
		}
		if err := partFile.Close(); err != nil {
			return err
		}
		filename := partFilename(partSeq)
		path := filepath.Join(w.datasetDir, filename)
		if err := os.Rename(path+".tmp", path); err != nil {
			return err
		}
		sum, err := sha256File(path)
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		parts = append(parts, model.PartInfo{
			Dataset:     w.datasetName,
			Version:     w.version,
			Sequence:    partSeq,
			Path:        filepath.Join(filepath.Base(w.datasetDir), filename),
			RecordCount: partRecords,
			RawBytes:    partRawBytes,
			CompBytes:   info.Size(),
			SHA256:      sum,
		})
		partSeq++
		partFile = nil
		partEnc = nil
		return nil
	}

	if err := startPart(); err != nil {
		return model.DatasetMetadata{}, fmt.Errorf("writer: start part: %w", err)
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(*heapItem[T])

		line, err := json.Marshal(top.rec)
		if err != nil {
			return model.DatasetMetadata{}, fmt.Errorf("writer: marshal merged record: %w", err)
		}
		if _, err := partEnc.Write(line); err != nil {
			return model.DatasetMetadata{}, err
		}
		if _, err := partEnc.Write([]byte("\n")); err != nil {
			return model.DatasetMetadata{}, err
		}
		partRecords++
		partRawBytes += int64(len(line)) + 1

		if partRecords >= int64(w.maxRecordsPerPart) {
			if err := finishPart(); err != nil {
				return model.DatasetMetadata{}, err
			}
			if err := startPart(); err != nil {
				return model.DatasetMetadata{}, err
			}
		}

		if next, ok := nextItem[T](top.scanner, top.runIndex); ok {
			heap.Push(h, next)
		}
	}

	if err := finishPart(); err != nil {
		return model.DatasetMetadata{}, err
	}

	datasetHash := hashParts(parts)

	return model.DatasetMetadata{
		Name:        w.datasetName,
		Version:     w.version,
		SchemaPath:  SchemaPath(w.datasetName),
		Parts:       parts,
		RecordCount: w.recordCount,
		SHA256:      datasetHash,
	}, nil
}

func nextItem[T any](scanner *bufio.Scanner, runIndex int) (*heapItem[T], bool) {
	if !scanner.Scan() {
		return nil, false
	}
	var rl runLine[T]
	if err := json.Unmarshal(scanner.Bytes(), &rl); err != nil {
		return nil, false
	}
	return &heapItem[T]{key: rl.Key, rec: rl.Rec, runIndex: runIndex, scanner: scanner}, true
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashParts is the dataset-level hash (§4.6.2): SHA-256 of the
// lexicographically sorted concatenation of that dataset's own part
// hashes. Parts are already merged in sorted order, but the hash is sorted
// explicitly so it stays correct if that ever changes.
func hashParts(parts []model.PartInfo) string {
	hashes := make([]string, len(parts))
	for i, p := range parts {
		hashes[i] = p.SHA256
	}
	sort.Strings(hashes)

	h := sha256.New()
	for _, ph := range hashes {
		h.Write([]byte(ph))
	}
	return hex.EncodeToString(h.Sum(nil))
}
