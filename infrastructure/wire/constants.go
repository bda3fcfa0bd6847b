// Package wire holds the session transport's wire-format constants:
// first-byte packet identifiers, fixed sizes and timing parameters.
// Grounded on infrastructure/settings/constants.go's plain-const-block
// style in the teacher repository.
package wire

import "time"

// First-byte packet identifiers on UDP, and on the outermost layer of a
// TCP relay frame (spec §6).
const (
	NetPacketCookieRequest  byte = 0x18
	NetPacketCookieResponse byte = 0x19
	NetPacketCryptoHS       byte = 0x1A
	NetPacketCryptoData     byte = 0x1B
	NetPacketLANDiscovery   byte = 0x21
)

// In-session data-frame packet-id ranges (spec §4.3).
const (
	PacketIDPadding  byte = 0
	PacketIDRequest  byte = 1
	PacketIDKill     byte = 2
	LosslessIDLow    byte = 16
	LosslessIDHigh   byte = 191
	LossyIDLow       byte = 192
	LossyIDHigh      byte = 254
)

// Sizes (spec §6).
const (
	PublicKeySize    = 32
	DHKeySize        = 32
	SessionKeySize   = 32
	NonceSize        = 24
	MACSize          = 16
	SymmetricKeySize = 32

	CookieSize         = NonceSize + (8 + 64) + MACSize // 112
	CookieRequestSize  = 1 + PublicKeySize + NonceSize + 72 + MACSize
	CookieResponseSize = 1 + NonceSize + CookieSize + 8 + MACSize

	HandshakeSize = 1 + CookieSize + NonceSize + NonceSize + SessionKeySize + 64 + CookieSize + MACSize

	MaxCryptoPacketSize = 1400
	MaxCryptoDataSize   = MaxCryptoPacketSize - 1 - 4 - 4 - MACSize
	CryptoMaxPadding    = 8

	LANDiscoveryPacketSize = 1 + PublicKeySize
)

// Timing (spec §3, §4.4, §4.6).
const (
	CookieLifetime = 15 * time.Second

	CryptoSendPacketInterval = 1 * time.Second
	MaxNumSendPacketTries    = 8

	// UDPDirectTimeout = send-interval * max-sendpacket-tries (spec §3);
	// with the 1 s send interval this is also the handshake-retry
	// deadline used in end-to-end scenario 2 of spec §8.
	UDPDirectTimeout = CryptoSendPacketInterval * time.Duration(MaxNumSendPacketTries)

	TCPPingFrequency = 8 * time.Second
	TCPPingTimeout   = 8 * time.Second

	PacketCounterAverageInterval = 50 * time.Millisecond
	CongestionEventTimeout       = 1 * time.Second

	RelayLockTimeout = 60 * time.Second

	// LANDiscoveryInterval is how often the LAN beacon re-broadcasts
	// (spec §4.8).
	LANDiscoveryInterval = 10 * time.Second
)

// Ring and window sizes (spec §3, §4.4, §8).
const (
	BufferRingSize              = 32768
	DataNumThreshold            = 21845
	CongestionQueueArraySize    = 12
	CongestionLastSentArraySize = 24
	CryptoMinQueueLength        = 64
	CryptoPacketMinRate         = 4.0
	NumClientConnections        = 16
	NumReservedPorts            = 16
	MaxFriendTCPConnections     = 6
	RecommendedTCPConnections   = 3
)
