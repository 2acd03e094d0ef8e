// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package csw

import (
	"encoding/xml"
	"fmt"
)

// request templates, CSW 2.0.2

const getRecordsTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecords xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"
    xmlns:ogc="http://www.opengis.net/ogc"
    service="CSW" version="2.0.2" resultType="results"
    startPosition="%d" maxRecords="%d"
    outputSchema="http://www.opengis.net/cat/csw/2.0.2">
  <csw:Query typeNames="csw:Record">
    <csw:ElementSetName>summary</csw:ElementSetName>%s
  </csw:Query>
</csw:GetRecords>`

const getRecordByIDTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecordById xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"
    service="CSW" version="2.0.2"
    outputSchema="` + outputSchemaGMD + `">
  <csw:Id>%s</csw:Id>
  <csw:ElementSetName>full</csw:ElementSetName>
</csw:GetRecordById>`

const cqlTemplate = `
    <csw:Constraint version="1.1.0">
      <csw:CqlText>%s</csw:CqlText>
    </csw:Constraint>`

const propertyIsLikeTemplate = `
    <csw:Constraint version="1.1.0">
      <ogc:Filter>
        <ogc:PropertyIsLike wildCard="%%" singleChar="_" escapeChar="\">
          <ogc:PropertyName>%s</ogc:PropertyName>
          <ogc:Literal>%s</ogc:Literal>
        </ogc:PropertyIsLike>
      </ogc:Filter>
    </csw:Constraint>`

const propertyIsEqualToTemplate = `
    <csw:Constraint version="1.1.0">
      <ogc:Filter>
        <ogc:PropertyIsEqualTo>
          <ogc:PropertyName>%s</ogc:PropertyName>
          <ogc:Literal>%s</ogc:Literal>
        </ogc:PropertyIsEqualTo>
      </ogc:Filter>
    </csw:Constraint>`

func buildGetRecords(maxRecords, startPosition int, constraint string) string {
	return fmt.Sprintf(getRecordsTemplate, startPosition, maxRecords, constraint)
}

func buildGetRecordByID(id string) string {
	return fmt.Sprintf(getRecordByIDTemplate, xmlEscape(id))
}

// getRecordsResponse decodes the parts of a GetRecordsResponse the
// harvester cares about. Element names are matched by local name, so any
// csw namespace prefix works.
type getRecordsResponse struct {
	XMLName       xml.Name `xml:"GetRecordsResponse"`
	SearchResults struct {
		Matched    int      `xml:"numberOfRecordsMatched,attr"`
		Returned   int      `xml:"numberOfRecordsReturned,attr"`
		NextRecord int      `xml:"nextRecord,attr"`
		Summary    []Record `xml:"SummaryRecord"`
		Brief      []Record `xml:"BriefRecord"`
		Full       []Record `xml:"Record"`
	} `xml:"SearchResults"`
}

// records flattens the three possible element-set shapes into one list.
func (r *getRecordsResponse) records() []Record {
	out := make([]Record, 0,
		len(r.SearchResults.Summary)+len(r.SearchResults.Brief)+len(r.SearchResults.Full))
	out = append(out, r.SearchResults.Summary...)
	out = append(out, r.SearchResults.Brief...)
	out = append(out, r.SearchResults.Full...)
	return out
}

type exceptionReport struct {
	XMLName    xml.Name `xml:"ExceptionReport"`
	Exceptions []struct {
		Code string   `xml:"exceptionCode,attr"`
		Text []string `xml:"ExceptionText"`
	} `xml:"Exception"`
}

// exceptionText extracts the message of an ows:ExceptionReport, or ""
// when the document is not one.
func exceptionText(raw []byte) string {
	var report exceptionReport
	if err := xml.Unmarshal(raw, &report); err != nil || len(report.Exceptions) == 0 {
		return ""
	}
	exc := report.Exceptions[0]
	if len(exc.Text) > 0 {
		return exc.Text[0]
	}
	return exc.Code
}
