package listener

import (
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

type PacketSource interface {
	Packets() chan gopacket.Packet
}

var _ PacketSource = (*gopacket.PacketSource)(nil)

func NewPacketSourceLive(device, filter string) (PacketSource, error) {
	handle, err := pcap.OpenLive(device, 65535, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	if err = handle.SetBPFFilter(filter); err != nil {
		return nil, err
	}
	return gopacket.NewPacketSource(handle, handle.LinkType()), nil
}

// NewPacketSourceFile replays a pcap dump. No BPF filter is applied; the assembler
// ignores everything that is not TCP.
func NewPacketSourceFile(fileName string) (PacketSource, func() error, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return gopacket.NewPacketSource(r, r.LinkType()), f.Close, nil
}
