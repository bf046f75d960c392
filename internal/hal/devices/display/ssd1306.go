package display

import "github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"

const (
	ssd1306Addr   = 0x3c
	width         = 128
	height        = 32
	pages         = height / 8
)

// cmds issued once at init, matching the standard SSD1306 power-on sequence.
var initCmds = []byte{
	0xAE,       // display off
	0xD5, 0x80, // clock divide
	0xA8, height - 1,
	0xD3, 0x00, // display offset
	0x40,       // start line 0
	0x8D, 0x14, // charge pump on
	0x20, 0x00, // horizontal addressing mode
	0xA1,       // segment remap
	0xC8,       // com scan direction
	0xDA, 0x02, // com pins
	0x81, 0x8F, // contrast
	0xD9, 0xF1, // precharge
	0xDB, 0x40, // vcomh deselect
	0xA4,       // resume to RAM content
	0xA6,       // normal (not inverted)
	0xAF,       // display on
}

// ssd1306 is a minimal I2C OLED driver: enough to init the panel and flip
// between two canned full-screen frames. It does not render text or
// arbitrary bitmaps — the original's menu/rotary UI that does is out of
// scope here (see package doc).
type ssd1306 struct {
	bus iohub.I2CHandle
}

func newSSD1306(bus iohub.I2CHandle) *ssd1306 {
	return &ssd1306{bus: bus}
}

func (d *ssd1306) init() error {
	for _, c := range initCmds {
		if err := d.writeCommand(c); err != nil {
			return err
		}
	}
	return d.showMenu()
}

func (d *ssd1306) writeCommand(c byte) error {
	return d.bus.Tx(ssd1306Addr, []byte{0x00, c}, nil)
}

func (d *ssd1306) writeFrame(buf []byte) error {
	if err := d.writeCommand(0x21); err != nil { // column address
		return err
	}
	if err := d.bus.Tx(ssd1306Addr, []byte{0x00, 0x21, 0x00, width - 1}, nil); err != nil {
		return err
	}
	if err := d.bus.Tx(ssd1306Addr, []byte{0x00, 0x22, 0x00, pages - 1}, nil); err != nil {
		return err
	}
	out := make([]byte, len(buf)+1)
	out[0] = 0x40 // data stream
	copy(out[1:], buf)
	return d.bus.Tx(ssd1306Addr, out, nil)
}

// showInfo lights every pixel of the panel, standing in for the
// original's logo splash.
func (d *ssd1306) showInfo() error {
	buf := make([]byte, width*pages)
	for i := range buf {
		buf[i] = 0xFF
	}
	return d.writeFrame(buf)
}

// showMenu clears the panel, standing in for the original's idle menu
// screen.
func (d *ssd1306) showMenu() error {
	return d.writeFrame(make([]byte, width*pages))
}
