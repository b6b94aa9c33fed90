// Package aac implements a bit-exact MPEG-4 AudioSpecificConfig parser
// and writer per ISO/IEC 14496-3.
package aac

// ObjectType is the MPEG-4 Audio Object Type, a 5-bit value (6-bit extended
// form when the base 5 bits read as 31, per ISO/IEC 14496-3 1.6.2.1).
type ObjectType int

const (
	ObjectTypeAACMain                     ObjectType = 1
	ObjectTypeAACLC                       ObjectType = 2
	ObjectTypeAACSSR                      ObjectType = 3
	ObjectTypeAACLTP                      ObjectType = 4
	ObjectTypeSBR                         ObjectType = 5
	ObjectTypeAACScalable                 ObjectType = 6
	ObjectTypeTwinVQ                      ObjectType = 7
	ObjectTypeCELP                        ObjectType = 8
	ObjectTypeHVXC                        ObjectType = 9
	ObjectTypeTTSI                        ObjectType = 12
	ObjectTypeMainSynthetic               ObjectType = 13
	ObjectTypeWavetableSynthesis          ObjectType = 14
	ObjectTypeGeneralMIDI                 ObjectType = 15
	ObjectTypeAlgorithmicSynthesisAndAFX  ObjectType = 16
	ObjectTypeERAACLC                     ObjectType = 17
	ObjectTypeERAACLTP                    ObjectType = 19
	ObjectTypeERAACScalable               ObjectType = 20
	ObjectTypeERTwinVQ                    ObjectType = 21
	ObjectTypeERBSAC                      ObjectType = 22
	ObjectTypeERAACLD                     ObjectType = 23
	ObjectTypeERCELP                      ObjectType = 24
	ObjectTypeERHVXC                      ObjectType = 25
	ObjectTypeERHILN                      ObjectType = 26
	ObjectTypeERParametric                ObjectType = 27
	ObjectTypeSSC                         ObjectType = 28
	ObjectTypePS                          ObjectType = 29
	ObjectTypeMPEGSurround                ObjectType = 30
	ObjectTypeLayer1                      ObjectType = 32
	ObjectTypeLayer2                      ObjectType = 33
	ObjectTypeLayer3                      ObjectType = 34
	ObjectTypeDST                         ObjectType = 35
	ObjectTypeALS                         ObjectType = 36
	ObjectTypeSLS                         ObjectType = 37
	ObjectTypeSLSNonCore                  ObjectType = 38
	ObjectTypeERAACELD                    ObjectType = 39
	ObjectTypeSMRSimple                   ObjectType = 40
	ObjectTypeSMRMain                     ObjectType = 41
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeAACMain:
		return "AAC Main"
	case ObjectTypeAACLC:
		return "AAC-LC"
	case ObjectTypeAACSSR:
		return "AAC SSR"
	case ObjectTypeAACLTP:
		return "AAC LTP"
	case ObjectTypeSBR:
		return "SBR"
	case ObjectTypeAACScalable:
		return "AAC Scalable"
	case ObjectTypePS:
		return "PS"
	case ObjectTypeERAACLD:
		return "ER AAC LD"
	case ObjectTypeERAACELD:
		return "ER AAC ELD"
	default:
		return "object type"
	}
}

// isERVariant reports whether t is one of the error-resilient AOTs that
// carry an EpConfig after their specific config (ISO/IEC 14496-3 Table 1).
func (t ObjectType) isERVariant() bool {
	switch t {
	case ObjectTypeERAACLC, ObjectTypeERAACLTP, ObjectTypeERAACScalable,
		ObjectTypeERTwinVQ, ObjectTypeERBSAC, ObjectTypeERAACLD,
		ObjectTypeERCELP, ObjectTypeERHVXC, ObjectTypeERHILN,
		ObjectTypeERParametric, ObjectTypeERAACELD:
		return true
	}
	return false
}

// isGA reports whether t uses GASpecificConfig (the layout carried by every
// stream this server actually needs to packetize: plain AAC and its
// error-resilient variants).
func (t ObjectType) isGA() bool {
	switch t {
	case ObjectTypeAACMain, ObjectTypeAACLC, ObjectTypeAACSSR, ObjectTypeAACLTP,
		ObjectTypeAACScalable, ObjectTypeTwinVQ,
		ObjectTypeERAACLC, ObjectTypeERAACLTP, ObjectTypeERAACScalable,
		ObjectTypeERTwinVQ, ObjectTypeERBSAC, ObjectTypeERAACLD:
		return true
	}
	return false
}
