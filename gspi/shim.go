package gspi

// CSPin is the chip-select output the shim drives around each transfer.
// Satisfied by tinygo.org/x/drivers-style GPIO output pins.
type CSPin interface {
	Low()
	High()
}

// SPIPeripheral is the duplex byte-shuffling primitive exposed by
// tinygo.org/x/drivers hardware SPI implementations (machine.SPI and
// its software-SPI fallbacks share this shape).
type SPIPeripheral interface {
	Tx(w, r []byte) error
}

// HostSPI adapts a tinygo.org/x/drivers SPI peripheral plus a manually
// driven CS pin into a gspi.Transport, the same owner-shim shape the
// HAL's I2C shim uses to adapt a bus owner to the drivers.I2C surface:
// narrow one concrete dependency down to the single method the caller
// above actually needs.
type HostSPI struct {
	spi SPIPeripheral
	cs  CSPin
}

func NewHostSPI(spi SPIPeripheral, cs CSPin) HostSPI {
	return HostSPI{spi: spi, cs: cs}
}

func (h HostSPI) Transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	h.cs.Low()
	err := h.spi.Tx(tx, rx)
	h.cs.High()
	if err != nil {
		return nil, err
	}
	return rx, nil
}
