package analysis

import "fmt"

const individualPrompt = `Analyze the following customer feedback and identify the main causes of dissatisfaction:

%s

Provide only the main causes as single words or short phrases (2-3 words maximum).

Format the response as follows:
Main Causes:
- [Cause 1]
- [Cause 2]
- [Cause 3]`

const bulkPrompt = `Analyze the following summary of customer feedback:

%s

Provide a comprehensive analysis including:
1. Top recurring issues
2. Suggested improvements for each issue
3. Potential root causes for these issues

Use the exact issue wording in every section. Format your response as follows:

Top 5 Recurring Issues:
1. [Issue 1]
2. [Issue 2]
3. [Issue 3]
4. [Issue 4]
5. [Issue 5]

Suggested Improvements:
1. [Issue 1]:
   - [Improvement 1]
   - [Improvement 2]
2. [Issue 2]:
   - [Improvement 1]
   - [Improvement 2]
...

Potential Root Causes:
1. [Issue 1]: [Root cause explanation]
2. [Issue 2]: [Root cause explanation]
...`

// IndividualPrompt builds the cause extraction prompt for one feedback text.
func IndividualPrompt(feedback string) string {
	return fmt.Sprintf(individualPrompt, feedback)
}

// BulkPrompt builds the recurring issues prompt for a feedback summary.
func BulkPrompt(summary string) string {
	return fmt.Sprintf(bulkPrompt, summary)
}
