package evaluator

import "fmt"

// buildAnalysisPrompt renders the scoring rubric for one multi-image call.
// The fallback variant relaxes the relevance language: by the time it runs the
// pipeline is choosing between broad topical imagery, not event coverage.
func buildAnalysisPrompt(title, research, currentDate string, fallback bool) string {
	if fallback {
		return fmt.Sprintf(`Analyze these images as possible header imagery for the article: %q
Context: %s
Current date: %s

These are broad, representative images rather than event coverage. For each image (in order), evaluate:
1. TEMPORAL RELEVANCE: "not_applicable" unless the image shows clearly dated content.
2. RELEVANCE: Would it work as a clean, professional header for this topic? Score 1-10.
3. WATERMARKS: none/minimal/heavy (reject if heavy)
4. ADS: none/minimal/intrusive (reject if intrusive)
5. QUALITY: high/medium/low (favor sharp, high-resolution imagery)
6. OUTDATED INFO: Does it contain stale data or obsolete branding?

%s`, title, research, currentDate, promptOutputContract)
	}

	return fmt.Sprintf(`Analyze these images for news article: %q
Context: %s
Current date: %s

For each image (in order), evaluate:
1. TEMPORAL RELEVANCE: Does it show current/recent data? Check dates, timestamps, chart timeframes.
   - For price/chart news: data must be from today or very recent
   - For event news: must show the actual event, not old stock photos
2. RELEVANCE: Directly related to the news? Score 1-10.
3. WATERMARKS: none/minimal/heavy (reject if heavy)
4. ADS: none/minimal/intrusive (reject if intrusive)
5. QUALITY: high/medium/low
6. OUTDATED INFO: Does it contain old/irrelevant information?

%s`, title, research, currentDate, promptOutputContract)
}

const promptOutputContract = `Return a JSON array with one evaluation per image, in the same order as provided.
Each evaluation should have this structure:
{
  "image_index": 0,
  "relevance_score": 8,
  "temporal_relevance": "current" or "outdated" or "not_applicable",
  "watermark_severity": "none" or "minimal" or "heavy",
  "ad_presence": "none" or "minimal" or "intrusive",
  "content_quality": "high" or "medium" or "low",
  "is_relevant_to_event": true or false,
  "contains_outdated_info": true or false,
  "reasoning": "brief explanation"
}

Return ONLY the JSON array, no other text.`
