package httpassembly

import (
	"bufio"
	"bytes"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
)

// HttpAssembler turns captured TCP packets into HTTP request/response pairs. It is
// not safe for concurrent use; feed it from one goroutine.
type HttpAssembler struct {
	pool      *reassembly.StreamPool
	assembler *reassembly.Assembler
}

func NewAssembler(factory HttpStreamFactory) *HttpAssembler {
	p := reassembly.NewStreamPool(&factoryWrapper{wrap: factory})
	a := reassembly.NewAssembler(p)
	return &HttpAssembler{pool: p, assembler: a}
}

type assemblyContext struct {
	CaptureInfo gopacket.CaptureInfo
}

func (c *assemblyContext) GetCaptureInfo() gopacket.CaptureInfo {
	return c.CaptureInfo
}

func (a *HttpAssembler) Assemble(p gopacket.Packet) {
	tcp := p.Layer(layers.LayerTypeTCP)
	if tcp == nil || p.NetworkLayer() == nil {
		return
	}

	c := assemblyContext{CaptureInfo: p.Metadata().CaptureInfo}
	a.assembler.AssembleWithContext(p.NetworkLayer().NetworkFlow(), tcp.(*layers.TCP), &c)
}

// FlushCloseOlderThan drops streams that have been idle since t, returning how many
// were closed.
func (a *HttpAssembler) FlushCloseOlderThan(t time.Time) int {
	_, closed := a.assembler.FlushCloseOlderThan(t)
	return closed
}

type HttpStreamFactory interface {
	New() HttpStream
}

type HttpStream interface {
	ReassembledRequestResponse(req *http.Request, res *http.Response)
}

type factoryWrapper struct {
	wrap HttpStreamFactory
}

func (f *factoryWrapper) New(netFlow, tcpFlow gopacket.Flow, tcp *layers.TCP, ac reassembly.AssemblerContext) reassembly.Stream {
	return &streamWrapper{wrap: f.wrap.New()}
}

type streamWrapper struct {
	mu   sync.Mutex
	wrap HttpStream
	req  []byte
	res  []byte
}

func (s *streamWrapper) Accept(tcp *layers.TCP, ci gopacket.CaptureInfo, dir reassembly.TCPFlowDirection, nextSeq reassembly.Sequence, start *bool, ac reassembly.AssemblerContext) bool {
	return true
}

func (s *streamWrapper) ReassembledSG(sg reassembly.ScatterGather, ac reassembly.AssemblerContext) {
	l, _ := sg.Lengths()
	if l == 0 {
		// http will always have content
		return
	}
	s.handlePayload(sg.Fetch(l))
}

// handlePayload pairs the first payload with the next one as request and response.
// TODO the stream is stateful; pipelined requests or a lost segment desync it until
// the next parse failure resets it.
func (s *streamWrapper) handlePayload(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.req == nil {
		s.req = bytes.Clone(payload)
	} else if s.res == nil {
		s.res = bytes.Clone(payload)
	}

	if s.req == nil || s.res == nil {
		return
	}

	defer func() {
		s.req = nil
		s.res = nil
	}()

	r, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(s.req)))
	if err != nil {
		slog.Debug("could not parse request", "err", err, "len", len(s.req))
		return
	}

	w, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(s.res)), r)
	if err != nil {
		slog.Debug("could not parse response", "err", err, "len", len(s.res))
		return
	}

	s.wrap.ReassembledRequestResponse(r, w)
}

func (s *streamWrapper) ReassemblyComplete(ac reassembly.AssemblerContext) bool {
	return true
}
