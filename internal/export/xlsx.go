package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geodata/internal/model"
)

// XLSXSheet is the name of the attribute table sheet.
const XLSXSheet = "attributes"

// WriteXLSX writes the attribute table as a spreadsheet: a header row of
// fid, geometry_type and the field names, then one row per feature. Blank
// attributes are left as empty cells.
func WriteXLSX(w io.Writer, fields []model.Field, features []model.Feature) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(XLSXSheet)
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("fid")
	header.AddCell().SetString("geometry_type")
	for _, fld := range fields {
		header.AddCell().SetString(fld.Name)
	}

	for _, feat := range features {
		row := sheet.AddRow()
		row.AddCell().SetInt(feat.ID)
		row.AddCell().SetString(feat.GeometryType())
		for _, fld := range fields {
			cell := row.AddCell()
			switch v := feat.Properties[fld.Name].(type) {
			case nil:
			case int64:
				cell.SetInt64(v)
			case float64:
				cell.SetFloat(v)
			case bool:
				cell.SetBool(v)
			default:
				cell.SetString(FormatValue(v))
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
