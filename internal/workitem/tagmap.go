package workitem

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/marleyhealth/scheduling/internal/scheduling"
)

// upsPushSOPClassUID identifies the Unified Procedure Step Push SOP class.
const upsPushSOPClassUID = "1.2.840.10008.5.1.4.34.5"

// hexTag renders a tag the way DICOMWeb JSON keys it: GGGGEEEE, upper hex.
func hexTag(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

var (
	tagSOPClassUID      = hexTag(tag.Tag{Group: 0x0008, Element: 0x0016})
	tagSOPInstanceUID   = hexTag(tag.Tag{Group: 0x0008, Element: 0x0018})
	tagAccessionNumber  = hexTag(tag.AccessionNumber)
	tagStationAE        = hexTag(tag.Tag{Group: 0x0008, Element: 0x005A})
	tagCodeValue        = hexTag(tag.Tag{Group: 0x0008, Element: 0x0100})
	tagModality         = hexTag(tag.Tag{Group: 0x0008, Element: 0x1030})
	tagPatientName      = hexTag(tag.PatientName)
	tagPatientID        = hexTag(tag.PatientID)
	tagPatientBirthDate = hexTag(tag.PatientBirthDate)
	tagPatientSex       = hexTag(tag.PatientSex)
	tagStudyInstanceUID = hexTag(tag.StudyInstanceUID)
	tagScheduledDate    = hexTag(tag.Tag{Group: 0x0040, Element: 0x0001})
	tagScheduledDateAlt = hexTag(tag.Tag{Group: 0x0040, Element: 0x0002})
	tagScheduledTime    = hexTag(tag.Tag{Group: 0x0040, Element: 0x0003})
	tagClaimingAE       = hexTag(tag.Tag{Group: 0x0040, Element: 0x0241})
	tagProcedureCode    = hexTag(tag.Tag{Group: 0x0040, Element: 0x4010})
	tagScheduledDT      = hexTag(tag.Tag{Group: 0x0040, Element: 0x4011})
)

// dicomToField maps filterable DICOM tags to work item fields.
var dicomToField = map[string]string{
	tagPatientID:        "patient_ref",
	tagPatientName:      "patient_name",
	tagPatientBirthDate: "date_of_birth",
	tagPatientSex:       "gender",
	tagScheduledDate:    "scheduled_date",
	tagScheduledDateAlt: "scheduled_date",
	tagScheduledTime:    "scheduled_time",
	tagProcedureCode:    "procedure_code",
	tagAccessionNumber:  "accession_number",
	tagModality:         "modality",
	tagStationAE:        "station_ae",
}

// Tags filterable with a partial match.
var partialMatchTags = map[string]bool{tagPatientName: true}

// Tags filterable as a range via <tag>__from / <tag>__to.
var rangeTags = map[string]bool{tagScheduledDateAlt: true}

// Range is a between filter; a missing side degrades to >= or <=.
type Range struct {
	From string
	To   string
}

// Query is a parsed worklist filter set, keyed by field name.
type Query struct {
	Exact  map[string]string
	Like   map[string]string
	Ranges map[string]Range
	Status Status
}

// ParseFilters translates DICOM tag filters into a Query. Unknown tags are
// silently ignored. The status filter defaults to Scheduled so modalities
// only see actionable work.
func ParseFilters(filters map[string]string) Query {
	q := Query{
		Exact:  make(map[string]string),
		Like:   make(map[string]string),
		Ranges: make(map[string]Range),
		Status: StatusScheduled,
	}

	for t, v := range filters {
		if strings.HasSuffix(t, "__from") || strings.HasSuffix(t, "__to") {
			continue
		}
		if t == "status" {
			q.Status = Status(v)
			continue
		}

		field, ok := dicomToField[t]
		if !ok {
			continue
		}

		clean := domainValue(t, v)
		if partialMatchTags[t] {
			q.Like[field] = "%" + clean + "%"
		} else {
			q.Exact[field] = clean
		}
	}

	for t := range rangeTags {
		from := filters[t+"__from"]
		to := filters[t+"__to"]
		if from == "" && to == "" {
			continue
		}
		q.Ranges[dicomToField[t]] = Range{From: from, To: to}
	}

	return q
}

// domainValue undoes DICOM string encodings on inbound filter values.
func domainValue(t, v string) string {
	if t == tagPatientName || t == tagModality {
		return strings.ReplaceAll(v, "^", " ")
	}
	return v
}

// DicomGender maps a stored gender to the DICOM CS code set.
func DicomGender(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male":
		return "M"
	case "female":
		return "F"
	case "other":
		return "O"
	default:
		return "U"
	}
}

func attr(vr string, values ...any) map[string]any {
	a := map[string]any{"vr": vr}
	if len(values) > 0 {
		a["Value"] = values
	}
	return a
}

// Dataset renders a work item as a DICOMWeb attribute map.
func Dataset(w WorkItem) map[string]any {
	ds := map[string]any{
		tagSOPClassUID:     attr("UI", upsPushSOPClassUID),
		tagSOPInstanceUID:  attr("UI", w.UPSInstanceUID),
		tagAccessionNumber: attr("SH", w.AccessionNumber),
		tagPatientID:       attr("LO", strings.ReplaceAll(w.PatientRef, " ", "-")),
		tagPatientName:     attr("PN", strings.ReplaceAll(w.PatientName, " ", "^")),
		tagPatientSex:      attr("CS", DicomGender(w.Gender)),
		tagProcedureCode: map[string]any{
			"vr": "SQ",
			"Value": []any{map[string]any{
				tagCodeValue: attr("SH", w.ProcedureCode),
				tagModality:  attr("LO", w.Modality),
			}},
		},
		// The station AE value sits beside its vr attribute at the top
		// level; modalities in the field depend on this exact shape.
		tagStationAE: attr("AE"),
		"Value":      []any{w.StationAE},
	}

	if w.DateOfBirth != nil {
		ds[tagPatientBirthDate] = attr("DA", w.DateOfBirth.Format("20060102"))
	}
	if w.ScheduledDate != nil {
		date := w.ScheduledDate.Format("20060102")
		ds[tagScheduledDateAlt] = attr("DA", date)
		ds[tagScheduledDT] = attr("DT", date+dicomTime(w.ScheduledTime))
	}

	return ds
}

// dicomTime renders a time of day as DICOM TM (HHMMSS).
func dicomTime(t scheduling.TimeOfDay) string {
	return fmt.Sprintf("%02d%02d00", int(t)/60, int(t)%60)
}

// attrValue pulls the first Value of a DICOMWeb attribute out of a decoded
// request body.
func attrValue(data map[string]any, tagHex string) string {
	a, ok := data[tagHex].(map[string]any)
	if !ok {
		return ""
	}
	vals, ok := a["Value"].([]any)
	if !ok || len(vals) == 0 {
		return ""
	}
	s, _ := vals[0].(string)
	return s
}

// ValidateUID checks the dotted form of a UPS instance UID.
func ValidateUID(uid string) error {
	if uid == "" || len(strings.Split(uid, ".")) < 4 {
		return ErrInvalidUID
	}
	return nil
}
