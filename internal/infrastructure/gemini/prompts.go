package gemini

import (
	"fmt"
	"strings"
)

const extractPrompt = `Identify every packaged food product visible in this image.
Respond with a single JSON object and nothing else. Use one key per product and,
for each product, give its Korean name as printed on the package and an English translation:
{
  "product 1": { "localName": "한글 상품명", "translatedName": "English name" },
  "product 2": { "localName": "한글 상품명", "translatedName": "English name" }
}
List products from the most prominent to the least prominent. Return {} if there are none.`

const verifyPrompt = `You compare product packaging photos.
Decide whether the two images show exactly the same product, not merely the same brand.
Check, in order of importance:
1. The product name printed on the package
2. Brand logo and distinctive design elements
3. Package colour, layout and motifs
4. Label text and characters
Respond with exactly one JSON object and no commentary:
{"sameProduct": true} or {"sameProduct": false}`

func refinePrompt(query string, names []string, desired int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The following catalog product names resemble the product name %q.\n", query)
	fmt.Fprintf(&sb, "Return the %d names most likely to be the same product as a JSON array of strings,\n", desired)
	sb.WriteString("most likely first. Copy names exactly as listed and do not add names that are not listed.\n")
	sb.WriteString("Example: [\"제품A\", \"제품B\"]\n\nCandidate names:\n")
	for _, n := range names {
		sb.WriteString("- ")
		sb.WriteString(n)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func selectPrompt(candidateURLs []string) string {
	var sb strings.Builder
	sb.WriteString("The attached image is the reference product photo.\n")
	sb.WriteString("From the candidate image URLs below, choose the one product image that looks most similar,\n")
	sb.WriteString("considering product name, package colour, structure, lettering and brand together.\n")
	sb.WriteString("Respond with exactly one JSON object: {\"selectedUrl\": \"<one of the URLs below>\"}.\n")
	sb.WriteString("If none is plausible respond with {\"selectedUrl\": null}.\n\nCandidate images:\n")
	for _, u := range candidateURLs {
		sb.WriteString(u)
		sb.WriteByte('\n')
	}
	return sb.String()
}
