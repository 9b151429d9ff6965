package evio

// Tags with a fixed meaning in data produced by the DAQ system.
const (
	TagRawTrigger      uint16 = 0xFF10
	TagRawTriggerTS    uint16 = 0xFF11
	TagRawTriggerTSBig uint16 = 0xFF12

	TagBuiltTrigger         uint16 = 0xFF20
	TagBuiltTriggerTS       uint16 = 0xFF21
	TagBuiltTriggerRun      uint16 = 0xFF22
	TagBuiltTriggerTSRun    uint16 = 0xFF23
	TagBuiltTriggerNRSD     uint16 = 0xFF24
	TagBuiltTriggerTSNRSD   uint16 = 0xFF25
	TagBuiltTriggerRunNRSD  uint16 = 0xFF26
	TagBuiltTriggerTSRunRSD uint16 = 0xFF27

	TagStreamingSIB      uint16 = 0xFF30
	TagStreamingSIBBuilt uint16 = 0xFF31
	TagStreamingPhysics  uint16 = 0xFF60

	TagSync     uint16 = 0xFFD0
	TagPrestart uint16 = 0xFFD1
	TagGo       uint16 = 0xFFD2
	TagPause    uint16 = 0xFFD3
	TagEnd      uint16 = 0xFFD4
)

// IsBuiltTrigger tells if the tag is one of the built trigger bank tags.
func IsBuiltTrigger(tag uint16) bool {
	return tag >= TagBuiltTrigger && tag <= TagBuiltTriggerTSRunRSD
}

// IsRawTrigger tells if the tag is one of the raw trigger bank tags.
func IsRawTrigger(tag uint16) bool {
	return tag >= TagRawTrigger && tag <= TagRawTriggerTSBig
}

// IsControl tells if the tag marks a run control event.
func IsControl(tag uint16) bool {
	return tag >= TagSync && tag <= TagEnd
}
