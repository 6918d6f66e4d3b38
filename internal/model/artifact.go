package model

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"kartd/internal/common/fsutil"
)

// Layout of a .kart file (all integers little endian):
//
//	magic "KART" | uint32 version | uint32 header length | JSON header |
//	float32 W1 | float32 B1 | float32 W2 | float32 B2
const (
	artifactMagic = "KART"
	// ArtifactVersion is the format version written by WriteArtifact.
	ArtifactVersion = 1
	maxHeaderBytes  = 1 << 20
)

// ArtifactHeader describes a trained head and how to rebuild the classifier.
type ArtifactHeader struct {
	Version    int      `json:"version"`
	Labels     []string `json:"labels"`
	InputSize  int      `json:"input_size"`
	Backbone   string   `json:"backbone"`
	FeatureDim int      `json:"feature_dim"`
	HiddenDim  int      `json:"hidden_dim"`
	RunID      string   `json:"run_id,omitempty"`
	CreatedAt  int64    `json:"created_unix,omitempty"`
}

// Artifact is a decoded .kart file.
type Artifact struct {
	Header ArtifactHeader
	Head   *Head
}

func (h ArtifactHeader) validate() error {
	switch {
	case len(h.Labels) == 0:
		return errors.New("artifact has no labels")
	case h.FeatureDim <= 0 || h.HiddenDim <= 0:
		return fmt.Errorf("artifact has invalid dims feature=%d hidden=%d", h.FeatureDim, h.HiddenDim)
	case h.Backbone == "":
		return errors.New("artifact has no backbone path")
	}
	return nil
}

// WriteArtifact encodes a and atomically replaces path.
func WriteArtifact(path string, a *Artifact) error {
	var buf bytes.Buffer
	if err := EncodeArtifact(&buf, a); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// EncodeArtifact writes a in the .kart layout.
func EncodeArtifact(w io.Writer, a *Artifact) error {
	f, hid, cls := a.Head.Dims()
	hdr := a.Header
	hdr.Version = ArtifactVersion
	hdr.FeatureDim, hdr.HiddenDim = f, hid
	if cls != len(hdr.Labels) {
		return fmt.Errorf("head has %d classes but %d labels", cls, len(hdr.Labels))
	}
	if err := hdr.validate(); err != nil {
		return err
	}
	hb, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode artifact header: %w", err)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(artifactMagic)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], ArtifactVersion)
	bw.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(hb)))
	bw.Write(u32[:])
	bw.Write(hb)
	for _, block := range [][]float64{a.Head.W1.RawMatrix().Data, a.Head.B1, a.Head.W2.RawMatrix().Data, a.Head.B2} {
		for _, v := range block {
			binary.LittleEndian.PutUint32(u32[:], math.Float32bits(float32(v)))
			bw.Write(u32[:])
		}
	}
	return bw.Flush()
}

// ReadArtifact decodes the .kart file at path.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := DecodeArtifact(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return a, nil
}

// DecodeArtifact parses the .kart layout from r.
func DecodeArtifact(r io.Reader) (*Artifact, error) {
	var fixed [12]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("short header: %w", err)
	}
	if string(fixed[:4]) != artifactMagic {
		return nil, errors.New("not a kart artifact")
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", v)
	}
	n := binary.LittleEndian.Uint32(fixed[8:12])
	if n == 0 || n > maxHeaderBytes {
		return nil, fmt.Errorf("invalid header length %d", n)
	}
	hb := make([]byte, n)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, fmt.Errorf("short header: %w", err)
	}
	var hdr ArtifactHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}
	f, hid, cls := hdr.FeatureDim, hdr.HiddenDim, len(hdr.Labels)
	w1, err := readFloats(r, hid*f)
	if err != nil {
		return nil, err
	}
	b1, err := readFloats(r, hid)
	if err != nil {
		return nil, err
	}
	w2, err := readFloats(r, cls*hid)
	if err != nil {
		return nil, err
	}
	b2, err := readFloats(r, cls)
	if err != nil {
		return nil, err
	}
	var extra [1]byte
	if k, _ := r.Read(extra[:]); k != 0 {
		return nil, errors.New("trailing bytes after weights")
	}
	return &Artifact{
		Header: hdr,
		Head: &Head{
			W1: mat.NewDense(hid, f, w1),
			B1: b1,
			W2: mat.NewDense(cls, hid, w2),
			B2: b2,
		},
	}, nil
}

func readFloats(r io.Reader, n int) ([]float64, error) {
	buf := make([]byte, n*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("truncated weights: %w", err)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return out, nil
}
