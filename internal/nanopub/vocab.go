package nanopub

// Namespaces used when assembling a nanopublication
const (
	NSRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	NSXSD     = "http://www.w3.org/2001/XMLSchema#"
	NSNP      = "http://www.nanopub.org/nschema#"
	NSNPX     = "http://purl.org/nanopub/x/"
	NSProv    = "http://www.w3.org/ns/prov#"
	NSDCT     = "http://purl.org/dc/terms/"
	NSFOAF    = "http://xmlns.com/foaf/0.1/"
	NSTemp    = "http://purl.org/nanopub/temp/"
	NSSetting = "https://w3id.org/np/o/snakemake/report/setting/"

	// TrustyBase is prepended to the artifact code of a signed nanopub
	TrustyBase = "https://w3id.org/np/"
)

// Terms
const (
	RDFType = NSRDF + "type"

	RDFSComment = NSRDFS + "comment"

	XSDString   = NSXSD + "string"
	XSDDateTime = NSXSD + "dateTime"
	XSDBoolean  = NSXSD + "boolean"
	XSDInteger  = NSXSD + "integer"
	XSDDouble   = NSXSD + "double"

	NPNanopublication    = NSNP + "Nanopublication"
	NPHasAssertion       = NSNP + "hasAssertion"
	NPHasProvenance      = NSNP + "hasProvenance"
	NPHasPublicationInfo = NSNP + "hasPublicationInfo"

	NPXHasSignature       = NSNPX + "hasSignature"
	NPXHasSignatureTarget = NSNPX + "hasSignatureTarget"
	NPXHasPublicKey       = NSNPX + "hasPublicKey"
	NPXHasAlgorithm       = NSNPX + "hasAlgorithm"
	NPXSignedBy           = NSNPX + "signedBy"

	ProvGeneratedAtTime = NSProv + "generatedAtTime"
	ProvWasAttributedTo = NSProv + "wasAttributedTo"

	DCTCreated = NSDCT + "created"
	DCTCreator = NSDCT + "creator"

	FOAFName      = NSFOAF + "name"
	FOAFAssertion = NSFOAF + "assertion" // Placeholder class used by the default assertion
)

// SettingIRI returns the predicate used to publish a report setting
func SettingIRI(name string) string {
	return NSSetting + name
}
