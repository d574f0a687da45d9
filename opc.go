package opcled

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"
)

// Open Pixel Control framing, from http://openpixelcontrol.org/:
//
//	| channel  | command  | length (n)           | data                    |
//	| 0 to 255 | 0 to 255 | high byte   low byte | n bytes of message data |
//
// For the set-pixel-colors command, data is a sequence of (red, green, blue)
// triples in strip order.
const (
	opcHeaderSize = 4
	opcMaxLength  = 0xFFFF

	// MaxColors is the most colors one OPC message can carry.
	MaxColors = opcMaxLength / 3
)

const (
	// ChannelDefault is the only channel accepted by the decoder.
	ChannelDefault uint8 = 0
	// CommandSetPixelColors is the only command accepted by the decoder.
	CommandSetPixelColors uint8 = 0
)

// ErrProtocol is returned when a message violates the protocol, such as
// addressing an unsupported channel or command.
var ErrProtocol = errors.New("opc protocol error")

// Message is a decoded OPC message.
type Message struct {
	Channel uint8
	Command uint8
	Colors  ColorSet
	// Trailing is the number of payload bytes after the last whole color.
	// They are read and dropped.
	Trailing int
}

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Decoder reads OPC messages from a stream.
type Decoder struct {
	// PayloadTimeout, if non-zero, bounds how long reading the rest of a
	// message may take once its header has arrived. It only applies if the
	// reader has a SetReadDeadline method, such as a net.Conn.
	PayloadTimeout time.Duration

	r        *bufio.Reader
	deadline deadlineReader
	header   [opcHeaderSize]byte
}

// NewDecoder creates a new decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	dr, _ := r.(deadlineReader)
	return &Decoder{
		r:        bufio.NewReaderSize(r, 3*1024),
		deadline: dr,
	}
}

// Decode blocks until one whole message is read. It returns io.EOF if the
// stream ends cleanly before a message begins and io.ErrUnexpectedEOF if it
// ends in the middle of one. Messages for any channel or command other than
// ChannelDefault and CommandSetPixelColors fail with ErrProtocol; their
// payload is not consumed.
func (d *Decoder) Decode() (Message, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Message{}, err
	}

	msg := Message{
		Channel: d.header[0],
		Command: d.header[1],
	}

	if msg.Channel != ChannelDefault {
		return msg, fmt.Errorf("%w: unsupported channel %d", ErrProtocol, msg.Channel)
	}
	if msg.Command != CommandSetPixelColors {
		return msg, fmt.Errorf("%w: unsupported command %d", ErrProtocol, msg.Command)
	}

	length := int(d.header[2])<<8 | int(d.header[3])

	if d.PayloadTimeout > 0 && d.deadline != nil {
		if err := d.deadline.SetReadDeadline(time.Now().Add(d.PayloadTimeout)); err != nil {
			return msg, fmt.Errorf("failed to set read deadline: %w", err)
		}
		defer d.deadline.SetReadDeadline(time.Time{})
	}

	msg.Colors = make(ColorSet, length/3)
	msg.Trailing = length % 3

	var rgb [3]byte
	for i := range msg.Colors {
		if _, err := io.ReadFull(d.r, rgb[:]); err != nil {
			return msg, unexpectedEOF(err)
		}
		msg.Colors[i] = Color{R: rgb[0], G: rgb[1], B: rgb[2]}
	}

	if msg.Trailing > 0 {
		if _, err := d.r.Discard(msg.Trailing); err != nil {
			return msg, unexpectedEOF(err)
		}
	}

	return msg, nil
}

// unexpectedEOF turns io.EOF into io.ErrUnexpectedEOF, since the stream
// ended after a header had already been read.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// AppendMessage appends an OPC message carrying colors to dst. It panics if
// colors has more than MaxColors colors.
func AppendMessage(dst []byte, channel, command uint8, colors ColorSet) []byte {
	if len(colors) > MaxColors {
		panic(fmt.Sprintf("opcled: %d colors do not fit in one message", len(colors)))
	}

	length := len(colors) * 3
	dst = append(dst, channel, command, byte(length>>8), byte(length))
	for _, c := range colors {
		dst = append(dst, c.R, c.G, c.B)
	}
	return dst
}

// WriteMessage writes an OPC message carrying colors to w.
func WriteMessage(w io.Writer, channel, command uint8, colors ColorSet) error {
	if len(colors) > MaxColors {
		return fmt.Errorf("%w: %d colors do not fit in one message", ErrProtocol, len(colors))
	}
	_, err := w.Write(AppendMessage(nil, channel, command, colors))
	return err
}
